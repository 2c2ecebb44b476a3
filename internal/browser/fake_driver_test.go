// internal/browser/fake_driver_test.go
package browser

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeDriver is a scripted in-memory DOM. Tests mutate its element and
// text maps to simulate page evolution; hooks observe interactions.
type fakeDriver struct {
	mu       sync.Mutex
	existing map[string]bool
	texts    map[string]string
	alive    bool

	navigations []string
	clicked     []string
	typed       []string
	enters      int
	image       []byte

	failWith error
	// onClick runs after a click is recorded, still under the lock.
	onClick func(selector string)
}

var _ Driver = (*fakeDriver)(nil)

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		existing: make(map[string]bool),
		texts:    make(map[string]string),
		alive:    true,
		image:    []byte("png-bytes"),
	}
}

func (d *fakeDriver) set(selector string, present bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.existing[selector] = present
}

func (d *fakeDriver) setText(selector, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.existing[selector] = true
	d.texts[selector] = text
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWith != nil {
		return d.failWith
	}
	d.navigations = append(d.navigations, url)
	return nil
}

func (d *fakeDriver) Exists(ctx context.Context, selector string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWith != nil {
		return false, d.failWith
	}
	return d.existing[selector], nil
}

func (d *fakeDriver) Click(ctx context.Context, selector string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWith != nil {
		return d.failWith
	}
	if !d.existing[selector] {
		return errors.New("no element matches " + selector)
	}
	d.clicked = append(d.clicked, selector)
	if d.onClick != nil {
		d.onClick(selector)
	}
	return nil
}

func (d *fakeDriver) Type(ctx context.Context, selector, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWith != nil {
		return d.failWith
	}
	d.typed = append(d.typed, text)
	return nil
}

func (d *fakeDriver) PressEnter(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enters++
	return nil
}

func (d *fakeDriver) Text(ctx context.Context, selector string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWith != nil {
		return "", d.failWith
	}
	return d.texts[selector], nil
}

func (d *fakeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWith != nil {
		return nil, d.failWith
	}
	return d.image, nil
}

func (d *fakeDriver) Alive(ctx context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.alive
}

func (d *fakeDriver) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alive = false
	return nil
}
