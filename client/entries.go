package client

import "fmt"

// allocate pops an entry index off the free list, triggering the resize
// handshake first if the list is empty (spec.md §4.5 "allocate-and-
// submit").
func (c *Client) allocate() (uint32, error) {
	c.mu.Lock()
	if len(c.free) > 0 {
		idx := c.free[len(c.free)-1]
		c.free = c.free[:len(c.free)-1]
		c.mu.Unlock()
		return idx, nil
	}
	c.mu.Unlock()

	if err := c.resize(); err != nil {
		return 0, fmt.Errorf("resize: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.free) == 0 {
		return 0, fmt.Errorf("free list still empty after resize")
	}
	idx := c.free[len(c.free)-1]
	c.free = c.free[:len(c.free)-1]
	return idx, nil
}
