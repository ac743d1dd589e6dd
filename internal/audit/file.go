package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/logging"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/repair"
)

// ChainKey is the chain every repair event is appended to.
const ChainKey = "repairs"

// FileEmitter appends events as JSON lines to {dir}/repairs-{run_id}.jsonl.
type FileEmitter struct {
	mu      sync.Mutex
	runID   string
	path    string
	file    *os.File
	w       *bufio.Writer
	tracker *ChainTracker
	head    string
	count   int
	log     *slog.Logger
}

// NewFileEmitter opens the event log of runID under dir.
func NewFileEmitter(dir, runID string) (*FileEmitter, error) {
	if dir == "" {
		dir = "./audit"
	}
	tracker, err := NewChainTracker(dir)
	if err != nil {
		return nil, fmt.Errorf("create chain tracker: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("repairs-%s.jsonl", runID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	head, err := tracker.Head(ChainKey)
	if err != nil && !errors.Is(err, ErrNoChainHead) {
		f.Close()
		return nil, err
	}

	return &FileEmitter{
		runID:   runID,
		path:    path,
		file:    f,
		w:       bufio.NewWriter(f),
		tracker: tracker,
		head:    head,
		log:     logging.Component("audit").With("run_id", runID),
	}, nil
}

// Path returns the event log path.
func (e *FileEmitter) Path() string { return e.path }

// Count returns the number of events written.
func (e *FileEmitter) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

// Record chains and appends the event of o.
func (e *FileEmitter) Record(ctx context.Context, o repair.Outcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	evt := NewEvent(e.runID, o)
	if err := Link(evt, e.head); err != nil {
		return err
	}

	line, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := e.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	e.head = evt.Chain.EventHash
	e.count++
	return nil
}

// Close flushes the log and persists the chain head.
func (e *FileEmitter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.w.Flush(); err != nil {
		e.file.Close()
		return fmt.Errorf("flush event log: %w", err)
	}
	if err := e.file.Close(); err != nil {
		return fmt.Errorf("close event log: %w", err)
	}
	if e.head != "" {
		if err := e.tracker.SetHead(ChainKey, e.head); err != nil {
			e.log.Warn("failed to update chain head", "error", err)
		}
	}
	e.log.Info("audit log written", "path", e.path, "events", e.count)
	return nil
}

// ReadEvents reads an event log written by FileEmitter.
func ReadEvents(path string) ([]*Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []*Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var evt Event
		if err := json.Unmarshal(sc.Bytes(), &evt); err != nil {
			return nil, fmt.Errorf("decode event %d: %w", len(events), err)
		}
		events = append(events, &evt)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
