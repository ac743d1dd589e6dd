package audit

import (
	"context"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/logging"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/repair"
)

// Config controls the audit log.
type Config struct {
	Enabled bool
	Dir     string
}

// Emitter records repair outcomes until closed.
type Emitter interface {
	repair.Recorder
	Close() error
}

// NewEmitter returns a file emitter for run id, or a no-op emitter when the
// audit log is disabled.
func NewEmitter(cfg Config, runID string) (Emitter, error) {
	log := logging.Component("audit")
	if !cfg.Enabled {
		log.Debug("disabled, using no-op emitter")
		return noopEmitter{}, nil
	}
	e, err := NewFileEmitter(cfg.Dir, runID)
	if err != nil {
		return nil, err
	}
	log.Info("using file emitter", "path", e.Path())
	return e, nil
}

type noopEmitter struct{}

func (noopEmitter) Record(_ context.Context, _ repair.Outcome) error { return nil }
func (noopEmitter) Close() error                                      { return nil }
