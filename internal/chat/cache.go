package chat

// Cache is an in-memory map from conversation ID to snapshot. It exists so
// that switching between two conversations visited in the same process
// lifetime never refetches from the server, and so that a brand-new
// conversation whose messages are not yet persisted server-side survives a
// switch away.
//
// Cache is not thread-safe; see the package documentation.
type Cache struct {
	snapshots map[string]Snapshot
}

// NewCache creates an empty conversation cache.
func NewCache() *Cache {
	return &Cache{snapshots: make(map[string]Snapshot)}
}

// Put stores a snapshot for the given conversation ID, replacing any
// existing entry. The snapshot is deep-copied in.
func (c *Cache) Put(conversationID string, snap Snapshot) {
	snap.Messages = cloneMessages(snap.Messages)
	snap.ModelHistory = cloneModelHistory(snap.ModelHistory)
	c.snapshots[conversationID] = snap
}

// Get returns a deep copy of the cached snapshot for the given conversation
// ID. The second return value reports whether an entry was found. The copy
// restores byte-for-byte what was displayed when the snapshot was taken.
func (c *Cache) Get(conversationID string) (Snapshot, bool) {
	snap, ok := c.snapshots[conversationID]
	if !ok {
		return Snapshot{}, false
	}
	snap.Messages = cloneMessages(snap.Messages)
	snap.ModelHistory = cloneModelHistory(snap.ModelHistory)
	return snap, true
}

// Invalidate removes the entry for the given conversation ID. Removing an
// absent ID is a no-op.
func (c *Cache) Invalidate(conversationID string) {
	delete(c.snapshots, conversationID)
}

// Clear removes all entries. Used when the server-side history is wiped.
func (c *Cache) Clear() {
	c.snapshots = make(map[string]Snapshot)
}

// Len returns the number of cached conversations.
func (c *Cache) Len() int {
	return len(c.snapshots)
}
