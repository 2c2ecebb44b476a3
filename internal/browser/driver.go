// internal/browser/driver.go
package browser

import "context"

// Driver abstracts the live browser tab behind the small set of DOM
// interactions the controller needs. The production implementation is
// ChromeDriver; tests substitute a scripted fake.
type Driver interface {
	// Navigate loads the given URL and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error

	// Exists reports whether at least one element matches the selector.
	Exists(ctx context.Context, selector string) (bool, error)

	// Click clicks the first element matching the selector.
	Click(ctx context.Context, selector string) error

	// Type focuses the matching element and injects text, paced to the
	// configured keystroke delays.
	Type(ctx context.Context, selector, text string) error

	// PressEnter dispatches an Enter key event to the focused element.
	PressEnter(ctx context.Context) error

	// Text returns the innerText of the last element matching the
	// selector, or the empty string when nothing matches.
	Text(ctx context.Context, selector string) (string, error)

	// Screenshot captures the current rendered page as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)

	// Alive reports whether the underlying browser target still responds.
	Alive(ctx context.Context) bool

	// Close terminates the browser process.
	Close(ctx context.Context) error
}
