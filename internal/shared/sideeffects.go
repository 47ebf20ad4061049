package shared

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SideEffects runs non-critical follow-up work after a state change has been persisted.
// Failures and panics are logged and reported to OnFailure, never returned.
type SideEffects struct {
	Logger    *slog.Logger
	OnFailure func(name string)
	Timeout   time.Duration
}

// Run executes fn best-effort and reports whether it succeeded.
func (s SideEffects) Run(ctx context.Context, name string, fn func(context.Context) error) (ok bool) {
	if fn == nil {
		return true
	}
	// Follow-ups outlive request cancellation.
	runCtx := context.WithoutCancel(ctx)
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, s.Timeout)
		defer cancel()
	}
	defer func() {
		if rec := recover(); rec != nil {
			s.fail(name, fmt.Errorf("panic: %v", rec))
			ok = false
		}
	}()
	if err := fn(runCtx); err != nil {
		s.fail(name, err)
		return false
	}
	return true
}

func (s SideEffects) fail(name string, err error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("side effect failed", slog.String("effect", name), slog.Any("error", err))
	if s.OnFailure != nil {
		s.OnFailure(name)
	}
}
