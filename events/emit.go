package events

import (
	"context"
	"log/slog"

	"github.com/casualjim/agora/pkg/slogx"
)

// Emit publishes e on topic when one is configured. Observation is best effort:
// a failed publish is logged and never interrupts the scenario.
func Emit(ctx context.Context, topic Topic, e Event) {
	if topic == nil {
		return
	}
	if err := topic.Publish(ctx, e); err != nil {
		slog.Debug("failed to emit event", slog.String("kind", e.Kind()), slogx.Error(err))
	}
}

// Recorder is a Hook collecting everything it receives, in order.
type Recorder struct {
	C      chan Event
	Errors chan error
}

// NewRecorder creates a recorder buffering up to size events and errors.
func NewRecorder(size int) *Recorder {
	return &Recorder{
		C:      make(chan Event, size),
		Errors: make(chan error, size),
	}
}

func (r *Recorder) OnEvent(_ context.Context, e Event) {
	select {
	case r.C <- e:
	default:
	}
}

func (r *Recorder) OnError(_ context.Context, err error) {
	select {
	case r.Errors <- err:
	default:
	}
}
