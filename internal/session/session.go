package session

import "sync"

// Credentials is the process-wide AI service credential state: the API key
// plus a "selected" flag re-checked before privileged calls and invalidated
// when the service signals an invalid or exhausted key. Modeled as an
// explicit object rather than ambient globals so tests can inject arbitrary
// credential states.
type Credentials struct {
	mu       sync.RWMutex
	apiKey   string
	selected bool
}

// New seeds the session from a configured key. An empty key starts the
// session unselected, forcing credential selection before privileged calls.
func New(apiKey string) *Credentials {
	return &Credentials{
		apiKey:   apiKey,
		selected: apiKey != "",
	}
}

// APIKey returns the current key. Implements the KeySource consumed by the
// AI service adapters.
func (c *Credentials) APIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

// Selected reports whether a credential is currently selected.
func (c *Credentials) Selected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selected
}

// Select replaces the key and marks the credential selected.
func (c *Credentials) Select(apiKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = apiKey
	c.selected = true
}

// Invalidate clears the selected flag but keeps the key, so the failure
// surface can hint which key was rejected. Called when a privileged call
// fails with a credential-signature error.
func (c *Credentials) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = false
}

// Clear drops the key and the selected flag.
func (c *Credentials) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = ""
	c.selected = false
}
