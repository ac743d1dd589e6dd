package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNoChainHead indicates no previous event exists for a chain.
var ErrNoChainHead = errors.New("no chain head found")

// ComputeEventHash returns the sha256 of the canonical JSON of evt with the
// event hash itself cleared.
func ComputeEventHash(evt *Event) (string, error) {
	c := *evt
	c.Chain.EventHash = ""

	canonical, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	hash := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(hash[:]), nil
}

// Link sets the chain fields of evt after prev.
func Link(evt *Event, prev string) error {
	evt.Chain.PrevEventHash = prev
	hash, err := ComputeEventHash(evt)
	if err != nil {
		return err
	}
	evt.Chain.EventHash = hash
	return nil
}

// Verify walks events in order and reports the first broken link.
func Verify(events []*Event) error {
	prev := ""
	for i, evt := range events {
		if i > 0 && evt.Chain.PrevEventHash != prev {
			return fmt.Errorf("event %d (%s): prev hash %q, want %q", i, evt.EventID, evt.Chain.PrevEventHash, prev)
		}
		hash, err := ComputeEventHash(evt)
		if err != nil {
			return err
		}
		if hash != evt.Chain.EventHash {
			return fmt.Errorf("event %d (%s): hash mismatch", i, evt.EventID)
		}
		prev = hash
	}
	return nil
}

// ChainTracker persists the last event hash so consecutive runs link up.
type ChainTracker struct {
	mu       sync.Mutex
	heads    map[string]string
	filePath string
}

// NewChainTracker loads the chain heads stored in dir.
func NewChainTracker(dir string) (*ChainTracker, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create chain tracker dir: %w", err)
	}

	ct := &ChainTracker{
		heads:    make(map[string]string),
		filePath: filepath.Join(dir, "chain-heads.json"),
	}
	if err := ct.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load chain heads: %w", err)
	}
	return ct, nil
}

// Head returns the last event hash of a chain.
func (ct *ChainTracker) Head(key string) (string, error) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	hash, ok := ct.heads[key]
	if !ok || hash == "" {
		return "", ErrNoChainHead
	}
	return hash, nil
}

// SetHead records the new head of a chain and persists all heads.
func (ct *ChainTracker) SetHead(key, hash string) error {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	ct.heads[key] = hash
	return ct.save()
}

func (ct *ChainTracker) load() error {
	data, err := os.ReadFile(ct.filePath)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &ct.heads)
}

func (ct *ChainTracker) save() error {
	data, err := json.MarshalIndent(ct.heads, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := ct.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, ct.filePath)
}
