package cas

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	hmerrors "hivemind/hivemind/errors"
)

// Disk is a file-per-hash Store rooted at a data directory, grounded on the
// teacher's DataDir convention (config.Config.DataDir) for where a node
// keeps its local persisted artifacts. Each record is written once under
// its own multihash filename; since content is addressed by its own hash,
// writes are idempotent and require no locking beyond the filesystem's own
// atomic rename guarantee.
type Disk struct {
	root string
}

// NewDisk opens (creating if necessary) a disk-backed store under root.
func NewDisk(root string) (*Disk, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("cas: create data dir: %w", err)
	}
	return &Disk{root: root}, nil
}

func (d *Disk) path(hash Multihash) string {
	return filepath.Join(d.root, string(hash)+".json")
}

func (d *Disk) Put(record any) (Multihash, error) {
	hash, canonical, err := Hash(record)
	if err != nil {
		return "", err
	}
	dest := d.path(hash)
	if _, err := os.Stat(dest); err == nil {
		return hash, nil
	}
	tmp, err := os.CreateTemp(d.root, "cas-write-*")
	if err != nil {
		return "", fmt.Errorf("cas: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(canonical); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("cas: write record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("cas: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("cas: finalize record: %w", err)
	}
	return hash, nil
}

func (d *Disk) Get(hash Multihash, out any) error {
	raw, err := os.ReadFile(d.path(hash))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", hmerrors.ErrNotFound, hash)
		}
		return fmt.Errorf("cas: read record %s: %w", hash, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: %v", hmerrors.ErrCorrupt, hash, err)
	}
	return nil
}
