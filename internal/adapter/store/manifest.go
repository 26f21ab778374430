package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
	"groundrag/internal/domain"
)

var (
	bucketGenerations = []byte("generations")
	bucketSources     = []byte("sources")
	bucketMeta        = []byte("meta")
	keyCurrent        = []byte("current")
)

// Manifest records published store generations in a bbolt database. A
// generation is written under its own prefix and only then made current in a
// single transaction, so readers resolving Current never see a half-written
// artifact pair.
type Manifest struct {
	db *bbolt.DB
}

// PublishMeta describes the store being published.
type PublishMeta struct {
	Sources        []string
	EmbeddingModel string
	ConfigHash     string
}

func OpenManifest(path string) (*Manifest, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create manifest directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketGenerations, bucketSources, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Manifest{db: db}, nil
}

func (m *Manifest) Close() error {
	return m.db.Close()
}

// Publish persists vs under a fresh generation directory inside dir and makes
// it current.
func (m *Manifest) Publish(vs *VectorStore, dir string, meta PublishMeta) (domain.Generation, error) {
	if len(meta.Sources) != 0 && len(meta.Sources) != vs.Len() {
		return domain.Generation{}, domain.Validationf("sources length %d does not match store length %d", len(meta.Sources), vs.Len())
	}

	var id uint64
	err := m.db.Update(func(tx *bbolt.Tx) error {
		var err error
		id, err = tx.Bucket(bucketGenerations).NextSequence()
		return err
	})
	if err != nil {
		return domain.Generation{}, fmt.Errorf("failed to allocate generation: %w", err)
	}

	genDir := filepath.Join(dir, fmt.Sprintf("gen-%06d", id))
	prefix := filepath.Join(genDir, "store")
	if err := vs.Persist(prefix); err != nil {
		os.RemoveAll(genDir)
		return domain.Generation{}, err
	}

	gen := domain.Generation{
		ID:             id,
		Prefix:         prefix,
		DocumentCount:  vs.Len(),
		Dimension:      vs.Dimension(),
		EmbeddingModel: meta.EmbeddingModel,
		ConfigHash:     meta.ConfigHash,
		CreatedAt:      time.Now().UTC(),
	}

	err = m.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(gen)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketGenerations).Put(idKey(id), data); err != nil {
			return err
		}

		if sources := tx.Bucket(bucketSources); sources != nil && len(meta.Sources) > 0 {
			srcData, err := json.Marshal(meta.Sources)
			if err != nil {
				return err
			}
			if err := sources.Put(idKey(id), srcData); err != nil {
				return err
			}
		}

		return tx.Bucket(bucketMeta).Put(keyCurrent, idKey(id))
	})
	if err != nil {
		os.RemoveAll(genDir)
		return domain.Generation{}, fmt.Errorf("failed to record generation: %w", err)
	}

	return gen, nil
}

// Current returns the generation readers should serve.
func (m *Manifest) Current() (domain.Generation, error) {
	var gen domain.Generation
	err := m.db.View(func(tx *bbolt.Tx) error {
		cur := tx.Bucket(bucketMeta).Get(keyCurrent)
		if cur == nil {
			return fmt.Errorf("%w: no published generation", domain.ErrNotFound)
		}
		data := tx.Bucket(bucketGenerations).Get(cur)
		if data == nil {
			return fmt.Errorf("%w: current generation %d missing from manifest", domain.ErrCorruption, binary.BigEndian.Uint64(cur))
		}
		return json.Unmarshal(data, &gen)
	})
	return gen, err
}

// Generations lists every recorded generation, oldest first.
func (m *Manifest) Generations() ([]domain.Generation, error) {
	var gens []domain.Generation
	err := m.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketGenerations).ForEach(func(k, v []byte) error {
			var gen domain.Generation
			if err := json.Unmarshal(v, &gen); err != nil {
				return fmt.Errorf("%w: generation %x: %v", domain.ErrCorruption, k, err)
			}
			gens = append(gens, gen)
			return nil
		})
	})
	return gens, err
}

// Sources returns the source path of every document in a generation, by position.
func (m *Manifest) Sources(id uint64) ([]string, error) {
	var sources []string
	err := m.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSources)
		if b == nil {
			return nil
		}
		data := b.Get(idKey(id))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &sources)
	})
	return sources, err
}

// Prune deletes all but the newest keep generations. The current generation
// is never removed.
func (m *Manifest) Prune(keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}

	gens, err := m.Generations()
	if err != nil {
		return 0, err
	}
	if len(gens) <= keep {
		return 0, nil
	}

	current, err := m.Current()
	if err != nil {
		return 0, err
	}

	var victims []domain.Generation
	for _, g := range gens[:len(gens)-keep] {
		if g.ID != current.ID {
			victims = append(victims, g)
		}
	}

	err = m.db.Update(func(tx *bbolt.Tx) error {
		sources := tx.Bucket(bucketSources)
		for _, g := range victims {
			if err := tx.Bucket(bucketGenerations).Delete(idKey(g.ID)); err != nil {
				return err
			}
			if sources != nil {
				if err := sources.Delete(idKey(g.ID)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune manifest: %w", err)
	}

	for _, g := range victims {
		if err := os.RemoveAll(filepath.Dir(g.Prefix)); err != nil {
			return 0, fmt.Errorf("failed to remove generation %d: %w", g.ID, err)
		}
	}
	return len(victims), nil
}

func idKey(id uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, id)
	return k
}
