package navigation

//go:generate $MOCKGEN -source=navigation.go -destination=mocks/navigation_mock.go

import (
	"net/url"
	"sync"
)

// Navigator reads and changes the current location.
type Navigator interface {
	// Location returns the absolute URL of the current page.
	Location() string
	// Assign navigates to location, which may be relative to the current page.
	Assign(location string)
}

// Browser is an in-memory Navigator that records every navigation.
type Browser struct {
	mu      sync.RWMutex
	current *url.URL
	history []string
}

// NewBrowser creates a Browser positioned at start.
func NewBrowser(start *url.URL) *Browser {
	current := *start

	return &Browser{
		current: &current,
		history: []string{current.String()},
	}
}

// Location returns the absolute URL of the current page.
func (b *Browser) Location() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.current.String()
}

// Assign resolves location against the current page and moves there.
// Unparseable targets are ignored.
func (b *Browser) Assign(location string) {
	target, err := url.Parse(location)
	if err != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = b.current.ResolveReference(target)
	b.history = append(b.history, b.current.String())
}

// History returns every visited location, oldest first.
func (b *Browser) History() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return append([]string(nil), b.history...)
}
