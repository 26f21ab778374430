package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"groundrag/internal/adapter/prompts"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Inspect the prompt registry",
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List prompts and their versions",
	Args:  cobra.NoArgs,
	RunE:  runPromptsList,
}

var promptsShowCmd = &cobra.Command{
	Use:   "show name[@version]",
	Short: "Print a prompt's system text",
	Args:  cobra.ExactArgs(1),
	RunE:  runPromptsShow,
}

func init() {
	rootCmd.AddCommand(promptsCmd)
	promptsCmd.AddCommand(promptsListCmd)
	promptsCmd.AddCommand(promptsShowCmd)
}

func runPromptsList(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry(GetConfig(), GetRootDir())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, name := range reg.Names() {
		versions, err := reg.Versions(name)
		if err != nil {
			return err
		}
		latest, err := reg.Latest(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%-20s latest=%-10s versions=%s\n", name, latest.Version, strings.Join(versions, ","))
		if latest.Description != "" {
			fmt.Fprintf(out, "  %s\n", latest.Description)
		}
	}
	return nil
}

func runPromptsShow(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry(GetConfig(), GetRootDir())
	if err != nil {
		return err
	}

	p, err := reg.Get(prompts.ParseRef(args[0]))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s@%s\n\n%s\n", p.Name, p.Version, p.System)
	return nil
}
