// internal/browser/chrome.go
package browser

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chatbridge/internal/config"
)

const aliveProbeTimeout = 5 * time.Second

// ChromeDriver drives a single long-lived Chrome tab over CDP. The tab
// context carries the target; operational deadlines come in through the
// per-call context and are combined with it.
type ChromeDriver struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc

	navTimeout time.Duration
	typing     config.TypingConfig
	logger     *zap.Logger
}

var _ Driver = (*ChromeDriver)(nil)

// NewChromeDriver launches Chrome with the configured profile directory
// and verifies it responds before returning.
func NewChromeDriver(ctx context.Context, cfg config.BrowserConfig, typing config.TypingConfig, logger *zap.Logger) (*ChromeDriver, error) {
	opts := buildAllocatorOptions(cfg)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	launchTimeout := cfg.LaunchTimeout
	if launchTimeout <= 0 {
		launchTimeout = 60 * time.Second
	}
	launchCtx, cancel := context.WithTimeout(tabCtx, launchTimeout)
	defer cancel()

	if err := chromedp.Run(launchCtx, chromedp.Navigate("about:blank")); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	d := &ChromeDriver{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		navTimeout:  cfg.NavigationTimeout,
		typing:      typing,
		logger:      logger.Named("chrome"),
	}
	d.logger.Info("Browser launched.",
		zap.Bool("headless", cfg.Headless),
		zap.String("user_data_dir", cfg.UserDataDir))
	return d, nil
}

// buildAllocatorOptions assembles launch flags on top of the chromedp
// defaults. Flags are keyed by name, so the overrides appended here win
// over the defaults.
func buildAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		// The defaults pass enable-automation; forcing it off keeps the
		// flag out of Chrome's command line, which conversational UIs
		// screen for.
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", cfg.Headless),
		chromedp.UserDataDir(cfg.UserDataDir),
	)

	if w, h := cfg.Viewport["width"], cfg.Viewport["height"]; w > 0 && h > 0 {
		opts = append(opts, chromedp.WindowSize(w, h))
	}

	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(flagName, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(flagName, true))
		}
	}

	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	}

	return opts
}

// run executes actions against the tab, honoring the caller's deadline.
func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(d.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads the URL and waits for the document body to be ready.
func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	navCtx := ctx
	if d.navTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, d.navTimeout)
		defer cancel()
	}
	d.logger.Debug("Navigating.", zap.String("url", url))
	return d.run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Exists reports whether the selector matches at least one element.
func (d *ChromeDriver) Exists(ctx context.Context, selector string) (bool, error) {
	script := fmt.Sprintf(`document.querySelector(%s) !== null`, jsLiteral(selector))
	var found bool
	if err := d.run(ctx, chromedp.Evaluate(script, &found)); err != nil {
		return false, err
	}
	return found, nil
}

// Click clicks the first element matching the selector.
func (d *ChromeDriver) Click(ctx context.Context, selector string) error {
	return d.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

// Type focuses the element and injects text. With pacing configured the
// keystrokes are dispatched one at a time with a randomized delay.
func (d *ChromeDriver) Type(ctx context.Context, selector, text string) error {
	if err := d.run(ctx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return err
	}

	if d.typing.MaxDelay <= 0 {
		return d.run(ctx, chromedp.SendKeys(selector, text, chromedp.ByQuery))
	}

	for _, r := range text {
		if err := d.run(ctx, chromedp.KeyEvent(string(r))); err != nil {
			return err
		}
		select {
		case <-time.After(d.keystrokeDelay()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (d *ChromeDriver) keystrokeDelay() time.Duration {
	min, max := d.typing.MinDelay, d.typing.MaxDelay
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// PressEnter dispatches an Enter key event to the focused element.
func (d *ChromeDriver) PressEnter(ctx context.Context) error {
	return d.run(ctx, chromedp.KeyEvent(kb.Enter))
}

// Text returns the innerText of the last matching element. The last
// match is the newest message block in a conversational transcript.
func (d *ChromeDriver) Text(ctx context.Context, selector string) (string, error) {
	script := fmt.Sprintf(`(() => {
		const nodes = document.querySelectorAll(%s);
		if (!nodes.length) { return ""; }
		return nodes[nodes.length - 1].innerText;
	})()`, jsLiteral(selector))

	var text string
	if err := d.run(ctx, chromedp.Evaluate(script, &text)); err != nil {
		return "", err
	}
	return text, nil
}

// Screenshot captures the rendered page as PNG bytes.
func (d *ChromeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := d.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		b, err := page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			Do(c)
		if err != nil {
			return err
		}
		buf = b
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Alive runs a trivial evaluation with a short deadline to confirm the
// target still responds.
func (d *ChromeDriver) Alive(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, aliveProbeTimeout)
	defer cancel()

	var one int
	return d.run(probeCtx, chromedp.Evaluate(`1`, &one)) == nil
}

// Close terminates the tab and the browser process.
func (d *ChromeDriver) Close(ctx context.Context) error {
	d.logger.Info("Shutting down browser.")
	d.cancelTab()
	d.cancelAlloc()

	select {
	case <-d.ctx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// jsLiteral renders s as a safely quoted JavaScript string literal.
func jsLiteral(s string) string {
	b, err := jsoniter.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}
