// internal/browser/context.go
package browser

import "context"

// CombineContext derives a context from ctx1 that is canceled when either
// ctx1 or ctx2 is done. ctx1 must be the session context because chromedp
// stores the CDP target on it; ctx2 carries the operational deadline.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(ctx1)

	go func() {
		select {
		case <-ctx2.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}
