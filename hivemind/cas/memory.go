package cas

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	hmerrors "hivemind/hivemind/errors"
)

// Memory is an in-memory Store, grounded on the retrieval pack's use of
// google/uuid (orbas1-Synnergy, ashita-ai-akashi) for request-scoped trace
// IDs: every Put is tagged with a short-lived correlation id purely for log
// lines, since the store itself has no persistence to correlate across
// process restarts. Intended for tests and the cmd/hivemindd dry-run mode.
type Memory struct {
	mu      sync.RWMutex
	records map[Multihash][]byte
	log     *slog.Logger
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[Multihash][]byte),
		log:     slog.Default(),
	}
}

func (m *Memory) Put(record any) (Multihash, error) {
	hash, canonical, err := Hash(record)
	if err != nil {
		return "", err
	}
	traceID := uuid.NewString()
	m.mu.Lock()
	m.records[hash] = canonical
	m.mu.Unlock()
	m.log.Debug("cas put", "multihash", hash.String(), "trace_id", traceID, "bytes", len(canonical))
	return hash, nil
}

func (m *Memory) Get(hash Multihash, out any) error {
	m.mu.RLock()
	raw, ok := m.records[hash]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", hmerrors.ErrNotFound, hash)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: %v", hmerrors.ErrCorrupt, hash, err)
	}
	return nil
}
