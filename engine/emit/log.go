package emit

import (
	"context"

	"github.com/rs/zerolog"
)

// LogEmitter writes Events as structured zerolog records, reusing the
// zerolog.Logger the rest of this module's ambient logging already
// standardizes on rather than owning its own writer/format pair.
type LogEmitter struct {
	logger zerolog.Logger
}

// NewLogEmitter wraps logger. Use zerolog.Nop() to silence it without
// switching emitters.
func NewLogEmitter(logger zerolog.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

func (l *LogEmitter) Emit(event Event) {
	evt := l.logger.Info().
		Str("run_id", event.RunID).
		Str("step_id", event.StepID).
		Int("attempt", event.Attempt)
	for k, v := range event.Meta {
		evt = evt.Interface(k, v)
	}
	evt.Msg(event.Msg)
}

func (l *LogEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, e := range events {
		l.Emit(e)
	}
	return nil
}

// Flush is a no-op: zerolog writes are synchronous to the underlying
// io.Writer, which owns any buffering of its own.
func (l *LogEmitter) Flush(_ context.Context) error {
	return nil
}
