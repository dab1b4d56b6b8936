package purge

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// Strategy selects how candidates are deleted.
type Strategy string

const (
	// StrategyBatch issues one bulk delete per batch. It is the default.
	StrategyBatch Strategy = "batch"
	// StrategySingle issues one delete call per object version.
	StrategySingle Strategy = "single"
)

// ParseStrategy accepts "batch", "single" or empty (batch).
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyBatch:
		return StrategyBatch, nil
	case StrategySingle:
		return StrategySingle, nil
	default:
		return "", fmt.Errorf("unknown delete strategy %q (want batch or single)", s)
	}
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithOutput sets where report lines are written. Default is os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(wf *Workflow) {
		if w != nil {
			wf.out = w
		}
	}
}

// WithLogger sets the structured logger used for debug events.
func WithLogger(log zerolog.Logger) Option {
	return func(wf *Workflow) {
		wf.log = log
	}
}

// WithBatchSize sets the number of refs per batch. Values outside
// 1..MaxBatchSize are ignored.
func WithBatchSize(n int) Option {
	return func(wf *Workflow) {
		if n > 0 && n <= MaxBatchSize {
			wf.batchSize = n
		}
	}
}

// WithStrategy sets the deletion strategy.
func WithStrategy(s Strategy) Option {
	return func(wf *Workflow) {
		if s != "" {
			wf.strategy = s
		}
	}
}
