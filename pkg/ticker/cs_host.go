//go:build !(tinygo && baremetal)

package ticker

import "sync"

// criticalSection on hosted builds, where the "interrupt" is another goroutine.
type criticalSection struct {
	mu sync.Mutex
}

func (c *criticalSection) enter() struct{} {
	c.mu.Lock()
	return struct{}{}
}

func (c *criticalSection) exit(struct{}) { c.mu.Unlock() }
