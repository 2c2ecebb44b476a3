// internal/browser/extract.go
package browser

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/chatbridge/api/schemas"
	"github.com/xkilldash9x/chatbridge/internal/config"
	"github.com/xkilldash9x/chatbridge/internal/selectors"
)

// Extractor waits for an asynchronous, possibly streaming reply to finish
// rendering and returns its final text. The UI offers no completion event,
// so the wait is a bounded poll loop with an explicit confirmation window.
type Extractor struct {
	driver   Driver
	registry *selectors.Registry
	cfg      config.ResponseConfig
	logger   *zap.Logger
}

// NewExtractor builds an Extractor over the given driver and registry.
func NewExtractor(driver Driver, registry *selectors.Registry, cfg config.ResponseConfig, logger *zap.Logger) *Extractor {
	return &Extractor{
		driver:   driver,
		registry: registry,
		cfg:      cfg,
		logger:   logger.Named("extract"),
	}
}

// AwaitCompletion polls the response region until the reply is complete:
// the streaming indicator is absent and the text has been stable for the
// full quiet period. When the ceiling elapses first the returned error is
// a timeout carrying the last observed partial text. A response region
// that never resolves at all is a structural failure, not a timeout.
func (e *Extractor) AwaitCompletion(ctx context.Context, ceiling time.Duration) (string, error) {
	if ceiling <= 0 {
		ceiling = e.cfg.Timeout
	}
	deadline := time.Now().Add(ceiling)

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	var (
		blockSeen  bool
		lastText   string
		lastChange = time.Now()
	)

	for {
		select {
		case <-ctx.Done():
			// The caller went away; the session is still fine.
			return "", &OpError{Class: schemas.FailCanceled, Partial: lastText, Err: ctx.Err()}
		case <-ticker.C:
		}

		now := time.Now()

		blockSel, found, err := e.firstExisting(ctx, selectors.RoleResponseBlock)
		if err != nil {
			return "", err
		}

		if found {
			text, err := e.driver.Text(ctx, blockSel)
			if err != nil {
				return "", opError(schemas.FailBrowserUnreachable, err)
			}
			blockSeen = true
			if text != lastText {
				lastText = text
				lastChange = now
			}

			streaming, err := e.anyExists(ctx, selectors.RoleStreamingCursor)
			if err != nil {
				return "", err
			}

			if !streaming && now.Sub(lastChange) >= e.cfg.QuietPeriod {
				e.logger.Debug("Response complete.",
					zap.Int("length", len(lastText)),
					zap.Duration("quiet", now.Sub(lastChange)))
				return lastText, nil
			}
		}

		if now.After(deadline) {
			if !blockSeen {
				e.logger.Warn("Response region never resolved; selector drift suspected.")
				return "", roleError(schemas.FailStructural, selectors.RoleResponseBlock)
			}
			e.logger.Warn("Response ceiling elapsed.",
				zap.Duration("ceiling", ceiling),
				zap.Int("partial_length", len(lastText)))
			return "", &OpError{Class: schemas.FailTimeout, Partial: lastText}
		}
	}
}

// firstExisting returns the highest-priority candidate locator for the
// role that currently matches a live element.
func (e *Extractor) firstExisting(ctx context.Context, role string) (string, bool, error) {
	candidates, err := e.registry.Resolve(role)
	if err != nil {
		return "", false, roleError(schemas.FailSelectorUnresolved, role)
	}
	for _, sel := range candidates {
		found, err := e.driver.Exists(ctx, sel)
		if err != nil {
			return "", false, opError(schemas.FailBrowserUnreachable, err)
		}
		if found {
			return sel, true, nil
		}
	}
	return "", false, nil
}

// anyExists reports whether any candidate for the role matches.
func (e *Extractor) anyExists(ctx context.Context, role string) (bool, error) {
	_, found, err := e.firstExisting(ctx, role)
	return found, err
}
