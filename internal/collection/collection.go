// Package collection holds the ordered, deduplicated list of bookmarks shown
// in one live view.
package collection

import "github.com/joestump/smartmark/internal/store"

// Collection is an ordered list with at most one entry per bookmark id.
// Every change builds a new backing slice, so a slice returned by Items is
// never modified afterwards. A Collection is not safe for concurrent use;
// its owner serializes access.
type Collection struct {
	items []store.Bookmark
}

// New returns an empty collection.
func New() *Collection {
	return &Collection{}
}

// Load replaces the contents with items, keeping the first occurrence of each id.
func (c *Collection) Load(items []store.Bookmark) {
	seen := make(map[string]struct{}, len(items))
	next := make([]store.Bookmark, 0, len(items))
	for _, b := range items {
		if _, ok := seen[b.ID]; ok {
			continue
		}
		seen[b.ID] = struct{}{}
		next = append(next, b)
	}
	c.items = next
}

// Prepend puts b at the front, dropping any entry that already has its id.
func (c *Collection) Prepend(b store.Bookmark) {
	next := make([]store.Bookmark, 0, len(c.items)+1)
	next = append(next, b)
	for _, cur := range c.items {
		if cur.ID != b.ID {
			next = append(next, cur)
		}
	}
	c.items = next
}

// Remove drops the entry with id. It reports whether one was present.
func (c *Collection) Remove(id string) bool {
	idx := c.index(id)
	if idx < 0 {
		return false
	}
	next := make([]store.Bookmark, 0, len(c.items)-1)
	next = append(next, c.items[:idx]...)
	next = append(next, c.items[idx+1:]...)
	c.items = next
	return true
}

// Contains reports whether an entry with id is present.
func (c *Collection) Contains(id string) bool { return c.index(id) >= 0 }

// Len returns the number of entries.
func (c *Collection) Len() int { return len(c.items) }

// Items returns the entries in display order.
func (c *Collection) Items() []store.Bookmark {
	out := make([]store.Bookmark, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Collection) index(id string) int {
	for i, b := range c.items {
		if b.ID == id {
			return i
		}
	}
	return -1
}
