package dispatcher

import (
	"sync"
	"time"

	"github.com/longhorn/resource-dispatcher/types"
)

// CarrierEntry is a resource reserved for a workload which has not started yet.
type CarrierEntry struct {
	NodeName   string           `json:"nodeName"`
	ResourceID string           `json:"resourceId"`
	Stash      *types.StashInfo `json:"stash"`
	PushedAt   time.Time        `json:"pushedAt"`
}

// Carrier is the stack of reservations made for one pending workload.
type Carrier struct {
	mutex   sync.Mutex
	entries []*CarrierEntry
}

// PushIfEmpty pushes only when nothing was reserved yet and reports whether it did.
func (c *Carrier) PushIfEmpty(entry *CarrierEntry) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if len(c.entries) > 0 {
		return false
	}
	c.entries = append(c.entries, entry)
	return true
}

func (c *Carrier) Pop() *CarrierEntry {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if len(c.entries) == 0 {
		return nil
	}
	top := c.entries[len(c.entries)-1]
	c.entries = c.entries[:len(c.entries)-1]
	return top
}

func (c *Carrier) Peek() *CarrierEntry {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if len(c.entries) == 0 {
		return nil
	}
	return c.entries[len(c.entries)-1]
}

func (c *Carrier) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.entries)
}

// removeOlderThan drops the entries pushed before deadline and returns them.
func (c *Carrier) removeOlderThan(deadline time.Time) []*CarrierEntry {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	kept := c.entries[:0]
	removed := []*CarrierEntry{}
	for _, e := range c.entries {
		if e.PushedAt.Before(deadline) {
			removed = append(removed, e)
		} else {
			kept = append(kept, e)
		}
	}
	c.entries = kept
	return removed
}

// CarrierStore keys carriers by the id of the pending workload.
type CarrierStore struct {
	mutex    sync.Mutex
	carriers map[string]*Carrier
}

func NewCarrierStore() *CarrierStore {
	return &CarrierStore{
		carriers: map[string]*Carrier{},
	}
}

func (s *CarrierStore) get(pendingID string) *Carrier {
	c, ok := s.carriers[pendingID]
	if !ok {
		c = &Carrier{}
		s.carriers[pendingID] = c
	}
	return c
}

// Peek returns a copy of the top reservation of the pending workload, or nil.
func (s *CarrierStore) Peek(pendingID string) *CarrierEntry {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	c, ok := s.carriers[pendingID]
	if !ok {
		return nil
	}
	return copyEntry(c.Peek())
}

// Reserved reports whether anything is reserved for the pending workload.
func (s *CarrierStore) Reserved(pendingID string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	c, ok := s.carriers[pendingID]
	return ok && c.Len() > 0
}

// PushIfEmpty records the first reservation of the pending workload. It reports false
// when another reservation got recorded first.
func (s *CarrierStore) PushIfEmpty(pendingID string, entry *CarrierEntry) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.get(pendingID).PushIfEmpty(entry)
}

// Pop takes the top reservation of the pending workload and forgets the carrier once
// it is empty.
func (s *CarrierStore) Pop(pendingID string) *CarrierEntry {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	c, ok := s.carriers[pendingID]
	if !ok {
		return nil
	}
	top := c.Pop()
	if c.Len() == 0 {
		delete(s.carriers, pendingID)
	}
	return top
}

// Expire drops every entry pushed before deadline.
func (s *CarrierStore) Expire(deadline time.Time) map[string][]*CarrierEntry {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := map[string][]*CarrierEntry{}
	for id, c := range s.carriers {
		if removed := c.removeOlderThan(deadline); len(removed) > 0 {
			out[id] = removed
		}
		if c.Len() == 0 {
			delete(s.carriers, id)
		}
	}
	return out
}

// Snapshot returns the top entry of every non-empty carrier.
func (s *CarrierStore) Snapshot() map[string]*CarrierEntry {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := map[string]*CarrierEntry{}
	for id, c := range s.carriers {
		if top := copyEntry(c.Peek()); top != nil {
			out[id] = top
		}
	}
	return out
}

func copyEntry(entry *CarrierEntry) *CarrierEntry {
	if entry == nil {
		return nil
	}
	out := *entry
	out.Stash = entry.Stash.DeepCopy()
	return &out
}
