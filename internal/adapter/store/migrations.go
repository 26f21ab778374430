package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"go.etcd.io/bbolt"
	"groundrag/config"
)

// CurrentSchemaVersion is the manifest layout this build reads and writes.
// Each bump needs an entry in schemaUpgrades.
const CurrentSchemaVersion = 2

var (
	keySchemaVersion = []byte("schema_version")
	keyConfigHash    = []byte("config_hash")
)

// schemaUpgrades maps a version to the step that brings the previous
// version up to it. Versions with nothing to change have no entry.
var schemaUpgrades = map[int]func(tx *bbolt.Tx) error{
	2: func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSources)
		return err
	},
}

type schemaState struct {
	version    int
	configHash string
}

// readSchema reports version 0 for a manifest that never recorded one and
// version 1 for a value it cannot parse.
func readSchema(tx *bbolt.Tx) schemaState {
	var st schemaState
	meta := tx.Bucket(bucketMeta)
	if meta == nil {
		return st
	}
	if raw := meta.Get(keySchemaVersion); raw != nil {
		v, err := strconv.Atoi(string(raw))
		if err != nil {
			v = 1
		}
		st.version = v
	}
	st.configHash = string(meta.Get(keyConfigHash))
	return st
}

// ComputeConfigHash hashes the configuration a published store depends on.
// Vectors from a different embedding model or dimension are not comparable,
// so a changed hash means the store must be rebuilt before it is queried.
func ComputeConfigHash(cfg *config.Config) string {
	data, _ := json.Marshal(struct {
		Includes    []string `json:"includes"`
		Excludes    []string `json:"excludes"`
		EmbProvider string   `json:"emb_provider"`
		EmbModel    string   `json:"emb_model"`
		EmbDim      int      `json:"emb_dim"`
	}{
		cfg.Ingest.Includes,
		cfg.Ingest.Excludes,
		cfg.Embedding.Provider,
		cfg.Embedding.Model,
		cfg.Embedding.Dimension,
	})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// MigrationResult is what CheckMigration found. NeedsRebuild wins over
// NeedsMigration: a rebuilt store is written at the current version anyway.
type MigrationResult struct {
	NeedsMigration bool   `json:"needs_migration"`
	NeedsRebuild   bool   `json:"needs_rebuild"`
	OldVersion     int    `json:"old_version"`
	NewVersion     int    `json:"new_version"`
	Reason         string `json:"reason,omitempty"`
}

// CheckMigration compares the manifest against this build and cfg without
// changing anything.
func (m *Manifest) CheckMigration(cfg *config.Config) (*MigrationResult, error) {
	var st schemaState
	if err := m.db.View(func(tx *bbolt.Tx) error {
		st = readSchema(tx)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	res := &MigrationResult{OldVersion: st.version, NewVersion: CurrentSchemaVersion}
	if st.version > CurrentSchemaVersion {
		res.NeedsRebuild = true
		res.Reason = fmt.Sprintf("manifest written by a newer release (v%d, this build reads v%d)", st.version, CurrentSchemaVersion)
		return res, nil
	}
	if st.version < CurrentSchemaVersion {
		res.NeedsMigration = true
		res.Reason = fmt.Sprintf("schema v%d, upgrading to v%d", st.version, CurrentSchemaVersion)
	}
	if st.configHash != "" && st.configHash != ComputeConfigHash(cfg) {
		res.NeedsRebuild = true
		res.Reason = "embedding or ingest configuration changed"
	}
	return res, nil
}

// Migrate applies pending upgrades and records the version and cfg's hash in
// one transaction. It runs right before ingest publishes, so a manifest from
// a newer release is simply restamped.
func (m *Manifest) Migrate(cfg *config.Config) error {
	return m.db.Update(func(tx *bbolt.Tx) error {
		st := readSchema(tx)
		for v := st.version + 1; v <= CurrentSchemaVersion; v++ {
			if up, ok := schemaUpgrades[v]; ok {
				if err := up(tx); err != nil {
					return fmt.Errorf("upgrade to schema v%d failed: %w", v, err)
				}
			}
		}

		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if err := meta.Put(keySchemaVersion, []byte(strconv.Itoa(CurrentSchemaVersion))); err != nil {
			return err
		}
		return meta.Put(keyConfigHash, []byte(ComputeConfigHash(cfg)))
	})
}
