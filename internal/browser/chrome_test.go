// internal/browser/chrome_test.go
package browser

import (
	"runtime"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/chatbridge/internal/config"
)

func TestBuildAllocatorOptionsExtendsDefaults(t *testing.T) {
	cfg := config.BrowserConfig{
		Headless:    true,
		UserDataDir: t.TempDir(),
		Viewport:    map[string]int{"width": 1280, "height": 800},
	}

	opts := buildAllocatorOptions(cfg)

	// The chromedp defaults come first so the appended overrides, keyed
	// by flag name, take precedence.
	require.Greater(t, len(opts), len(chromedp.DefaultExecAllocatorOptions))
	for i, opt := range opts {
		assert.NotNil(t, opt, "option %d must be a usable allocator option", i)
	}
}

func TestBuildAllocatorOptionsCustomArgs(t *testing.T) {
	base := config.BrowserConfig{UserDataDir: t.TempDir()}

	plain := buildAllocatorOptions(base)

	withArgs := base
	withArgs.Args = []string{"--lang=en-US", "--mute-audio"}
	extended := buildAllocatorOptions(withArgs)

	assert.Equal(t, len(plain)+2, len(extended),
		"each configured arg must contribute exactly one flag")
}

func TestBuildAllocatorOptionsSkipsZeroViewport(t *testing.T) {
	base := config.BrowserConfig{UserDataDir: t.TempDir()}

	plain := buildAllocatorOptions(base)

	sized := base
	sized.Viewport = map[string]int{"width": 1024, "height": 768}
	withViewport := buildAllocatorOptions(sized)

	assert.Equal(t, len(plain)+1, len(withViewport))
}

func TestBuildAllocatorOptionsLinuxSandboxFlags(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("sandbox flags are linux-only")
	}

	small := buildAllocatorOptions(config.BrowserConfig{UserDataDir: t.TempDir()})
	assert.Greater(t, len(small), len(chromedp.DefaultExecAllocatorOptions)+4)
}

func TestJSLiteralQuoting(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain selector", "#prompt-textarea", `"#prompt-textarea"`},
		{"embedded quotes", `div[aria-label="Send"]`, `"div[aria-label=\"Send\"]"`},
		{"empty", "", `""`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, jsLiteral(tc.in))
		})
	}
}

func TestKeystrokeDelayBounds(t *testing.T) {
	d := &ChromeDriver{typing: config.TypingConfig{
		MinDelay: 10 * time.Millisecond,
		MaxDelay: 50 * time.Millisecond,
	}}

	for i := 0; i < 100; i++ {
		delay := d.keystrokeDelay()
		assert.GreaterOrEqual(t, delay, 10*time.Millisecond)
		assert.Less(t, delay, 50*time.Millisecond)
	}

	fixed := &ChromeDriver{typing: config.TypingConfig{
		MinDelay: 20 * time.Millisecond,
		MaxDelay: 20 * time.Millisecond,
	}}
	assert.Equal(t, 20*time.Millisecond, fixed.keystrokeDelay())
}
