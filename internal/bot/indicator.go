package bot

import (
	"context"
	"strings"
	"time"
)

const (
	thinkingText = "Thinking..."
	// cleanupTimeout bounds deleting the indicator after its turn.
	cleanupTimeout = 5 * time.Second
)

// startThinking posts the indicator in contextID and animates it until
// the returned stop function is called. stop is safe to call more than
// once; it waits for the animation to exit and then deletes the message.
// Failures are logged only.
func (b *Bot) startThinking(ctx context.Context, contextID string) (stop func()) {
	msgID, err := b.out.Send(ctx, contextID, thinkingText)
	if err != nil {
		b.logger.Warn("thinking indicator send failed", "context_id", contextID, "error", err)
		return func() {}
	}

	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(b.thinkInterval)
		defer ticker.Stop()

		dots := 1
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := b.out.Edit(ctx, contextID, msgID, "Thinking"+strings.Repeat(".", dots)); err != nil {
					b.logger.Debug("thinking indicator edit failed", "context_id", contextID, "error", err)
				}
				dots = dots%3 + 1
			}
		}
	}()

	stopped := false
	return func() {
		if stopped {
			return
		}
		stopped = true
		close(done)
		<-exited

		// The turn's context may already be done; cleanup still runs.
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		if err := b.out.Delete(cctx, contextID, msgID); err != nil {
			b.logger.Warn("thinking indicator cleanup failed", "context_id", contextID, "error", err)
		}
	}
}
