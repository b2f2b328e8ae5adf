package concurrency

import (
	"context"
)

// Merge forwards the values of every channel in chans to the returned
// channel, which is closed once all of chans are closed. Values arriving
// after ctx ends are discarded, but chans are still drained to the end so
// their producers never block.
func Merge[T any](ctx context.Context, chans []<-chan T) <-chan T {
	out := make(chan T, len(chans))
	go func() {
		defer close(out)
		ForEach(ctx, len(chans), chans, func(ctx context.Context, _ int, ch <-chan T) {
			for v := range ch {
				Send(ctx, v, out)
			}
		})
	}()
	return out
}
