// Package history maintains the ordered sidebar list of conversation
// summaries. The list is sourced from the remote history store and patched
// optimistically as exchanges complete locally, so the sidebar stays current
// without a refetch after every message.
package history

import (
	"sort"
	"strings"
	"time"
)

// PreviewLength is the maximum number of characters shown for a conversation
// preview before truncation.
const PreviewLength = 50

// Summary describes one conversation in the sidebar.
type Summary struct {
	// ConversationID identifies the conversation this summary belongs to.
	ConversationID string

	// Preview is a short text derived from the conversation's defining
	// message; see Preview for the derivation rule.
	Preview string

	// LastUpdated is the time of the conversation's most recent message.
	LastUpdated time.Time

	// MessageCount is the number of messages in the conversation.
	MessageCount int
}

// Item is a Summary plus the render-time active flag. The flag is derived
// from the current session ID on every render and never stored.
type Item struct {
	Summary
	Active bool
}

// Index holds the ordered list of conversation summaries,
// most-recently-updated first.
//
// Index is not thread-safe. All access happens from the event-driven flow
// that owns it.
type Index struct {
	items []Summary
}

// NewIndex creates an empty history index.
func NewIndex() *Index {
	return &Index{}
}

// Replace swaps in a new list, ordered most-recently-updated first. Entries
// with equal timestamps keep the relative order they arrived in.
//
// Remote refreshes go through here after the fetch succeeds, so a failed
// fetch leaves the prior list intact; the sidebar is a best-effort feature.
func (x *Index) Replace(summaries []Summary) {
	items := make([]Summary, len(summaries))
	copy(items, summaries)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].LastUpdated.After(items[j].LastUpdated)
	})
	x.items = items
}

// UpsertLocal inserts item at the head of the list, used for optimistic
// updates right after a locally known exchange completes. An existing entry
// with the same conversation ID is replaced, not duplicated.
func (x *Index) UpsertLocal(item Summary) {
	x.removeID(item.ConversationID)
	x.items = append([]Summary{item}, x.items...)
}

// Remove deletes the entry for the given conversation ID. Removing an absent
// ID is a no-op, not an error.
func (x *Index) Remove(conversationID string) {
	x.removeID(conversationID)
}

// Clear removes all entries.
func (x *Index) Clear() {
	x.items = nil
}

// Len returns the number of summaries in the index.
func (x *Index) Len() int {
	return len(x.items)
}

// Items returns a copy of the ordered summary list.
func (x *Index) Items() []Summary {
	out := make([]Summary, len(x.items))
	copy(out, x.items)
	return out
}

// MarkActive returns the list as render-ready items with the active flag set
// on the entry matching currentID. The flag is recomputed on every call.
func (x *Index) MarkActive(currentID string) []Item {
	out := make([]Item, len(x.items))
	for i, s := range x.items {
		out[i] = Item{Summary: s, Active: s.ConversationID == currentID}
	}
	return out
}

func (x *Index) removeID(conversationID string) {
	for i, s := range x.items {
		if s.ConversationID == conversationID {
			x.items = append(x.items[:i], x.items[i+1:]...)
			return
		}
	}
}

// Preview derives the sidebar preview text for a conversation. The user's
// own message wins; the assistant response or image prompt is the fallback;
// "Untitled" covers conversations with neither.
//
// TODO(product): some earlier UI variants preferred the assistant response
// over the user message; confirm this precedence before it calcifies.
func Preview(userMessage, aiResponse, imagePrompt string) string {
	text := strings.TrimSpace(userMessage)
	if text == "" {
		text = strings.TrimSpace(aiResponse)
	}
	if text == "" {
		text = strings.TrimSpace(imagePrompt)
	}
	if text == "" {
		return "Untitled"
	}
	return Truncate(text, PreviewLength)
}

// Truncate shortens text to max runes, appending "..." when it was cut.
func Truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
