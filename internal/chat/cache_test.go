package chat

import "testing"

func snapshotWith(id, text string) Snapshot {
	return Snapshot{
		ConversationID: id,
		Messages:       []Message{{Role: RoleUser, Text: text}},
		ModelHistory:   []ModelEntry{{Role: RoleUser, Content: text}},
	}
}

func TestCachePutGet(t *testing.T) {
	c := NewCache()

	c.Put("conv-1", snapshotWith("conv-1", "hello"))

	snap, ok := c.Get("conv-1")
	if !ok {
		t.Fatal("Get should find the stored snapshot")
	}
	if len(snap.Messages) != 1 || snap.Messages[0].Text != "hello" {
		t.Errorf("Snapshot content lost: %+v", snap.Messages)
	}
}

func TestCacheGetMissing(t *testing.T) {
	c := NewCache()

	if _, ok := c.Get("unknown"); ok {
		t.Error("Get should report a miss for an unknown ID")
	}
}

func TestCachePutReplaces(t *testing.T) {
	c := NewCache()

	c.Put("conv-1", snapshotWith("conv-1", "first"))
	c.Put("conv-1", snapshotWith("conv-1", "second"))

	snap, _ := c.Get("conv-1")
	if snap.Messages[0].Text != "second" {
		t.Errorf("Put should replace the existing entry, got %q", snap.Messages[0].Text)
	}
	if c.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", c.Len())
	}
}

func TestCacheIsolatesStoredSnapshot(t *testing.T) {
	c := NewCache()

	snap := snapshotWith("conv-1", "original")
	c.Put("conv-1", snap)

	// Mutating the caller's copy must not reach the cache.
	snap.Messages[0].Text = "mutated"

	stored, _ := c.Get("conv-1")
	if stored.Messages[0].Text != "original" {
		t.Errorf("Cache should deep-copy on Put, got %q", stored.Messages[0].Text)
	}
}

func TestCacheIsolatesReturnedSnapshot(t *testing.T) {
	c := NewCache()
	c.Put("conv-1", snapshotWith("conv-1", "original"))

	first, _ := c.Get("conv-1")
	first.Messages[0].Text = "mutated"

	second, _ := c.Get("conv-1")
	if second.Messages[0].Text != "original" {
		t.Errorf("Cache should deep-copy on Get, got %q", second.Messages[0].Text)
	}
}

func TestCacheInvalidate(t *testing.T) {
	c := NewCache()
	c.Put("conv-1", snapshotWith("conv-1", "hello"))
	c.Put("conv-2", snapshotWith("conv-2", "world"))

	c.Invalidate("conv-1")

	if _, ok := c.Get("conv-1"); ok {
		t.Error("Invalidated entry should be gone")
	}
	if _, ok := c.Get("conv-2"); !ok {
		t.Error("Other entries should survive")
	}

	// Removing an absent ID is a no-op.
	c.Invalidate("unknown")
	if c.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", c.Len())
	}
}

func TestCacheClear(t *testing.T) {
	c := NewCache()
	c.Put("conv-1", snapshotWith("conv-1", "hello"))
	c.Put("conv-2", snapshotWith("conv-2", "world"))

	c.Clear()

	if c.Len() != 0 {
		t.Errorf("Clear should empty the cache, got %d entries", c.Len())
	}
}
