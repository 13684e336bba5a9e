package agent

import (
	"context"
	"time"
)

const overflowInterval = 2500 * time.Millisecond

// thinkingOverflow is cycled once a runner's scripted thinking lines run out,
// so the UI never shows a stale repeated message.
var thinkingOverflow = []string{
	"Cross-checking intermediate results...",
	"Reviewing supporting documents for consistency...",
	"Weighing alternative interpretations...",
	"Re-reading relevant policy guidance...",
	"Double-checking the arithmetic...",
	"Consolidating findings before deciding...",
}

// StartThinking emits scripted thinking lines in the background at the given
// interval, cycling overflow lines once the script is exhausted. The
// returned stop function cancels the stream and waits for it to finish; call
// it in a deferred block around the model call it masks so no orphaned line
// lands after the real result is recorded.
func (e *Emitter) StartThinking(ctx context.Context, lines []string, interval time.Duration) (stop func()) {
	streamCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for _, line := range lines {
			select {
			case <-streamCtx.Done():
				return
			case <-time.After(interval):
			}
			e.Thinking(streamCtx, line)
		}
		for idx := 0; ; idx++ {
			select {
			case <-streamCtx.Done():
				return
			case <-time.After(overflowInterval):
			}
			e.Thinking(streamCtx, thinkingOverflow[idx%len(thinkingOverflow)])
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
