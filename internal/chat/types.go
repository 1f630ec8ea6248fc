// Package chat provides state management for conversations with the logo
// generation backend. It tracks the rendered message log shown to the user,
// the model-facing history replayed to the remote chat API, and an in-memory
// cache of conversations visited during this process lifetime.
//
// # Design Overview
//
// A Session owns exactly one active conversation. Two parallel histories are
// kept for it:
//
//  1. The rendered log ([]Message) is everything the user sees: text turns,
//     image turns with generation metadata, and error turns.
//  2. The model-facing history ([]ModelEntry) is the role/content-only
//     transcript the remote chat API needs to continue the dialogue. Image-only
//     assistant turns and error turns never extend it.
//
// The two histories are maintained together by the append methods so callers
// cannot get them out of sync.
//
// Switching conversations goes through Snapshot/Restore. A Snapshot is a deep
// copy, so a cached conversation restored later renders exactly as it did
// before the switch away, regardless of what happened in between.
//
// # Thread Safety
//
// Session and Cache are NOT thread-safe. All mutation happens from the single
// event-driven flow that owns them (see exchange.Controller, which serializes
// access).
package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// conversationIDPrefix marks client-generated conversation IDs. The backend
// accepts these as opaque strings and may also assign its own.
const conversationIDPrefix = "conv"

// GenerationMetadata describes how a generated image was produced.
// It is attached to image messages and rendered under the image.
type GenerationMetadata struct {
	// Model is the model identifier, with a "+ LoRA" suffix when one was applied.
	Model string

	// Steps is the number of inference steps used.
	Steps int

	// Dimensions is the output size formatted as "WIDTHxHEIGHT".
	Dimensions string

	// LoRA is the LoRA filename that was applied, empty when none was.
	LoRA string

	// IPAdapterScale is the reference-image conditioning strength.
	// Zero when conditioning was not used.
	IPAdapterScale float64

	// Timestamp is the backend-reported generation time.
	Timestamp string
}

// Message is a single entry in the rendered conversation log.
//
// Invariant: a message carries text, an image, or both. The append methods on
// Session enforce that a message is never empty.
type Message struct {
	// Role is RoleUser or RoleAssistant.
	Role string

	// Text is the display text. May be empty for image-only messages.
	Text string

	// ImageRef references a generated image: either a data URI returned
	// inline by the backend or a URL path served by it.
	ImageRef string

	// Metadata is present only on image messages.
	Metadata *GenerationMetadata

	// Filename is the backend-suggested name for downloading the image.
	Filename string

	// IsError marks messages that surface a failed exchange. Error messages
	// live only in the rendered log, never in the model-facing history.
	IsError bool
}

// ModelEntry is the role/content-only form of a message, the subset the
// remote chat API needs to replay conversation context.
type ModelEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Snapshot is an immutable deep copy of a conversation's full state, suitable
// for caching and later restoration.
type Snapshot struct {
	ConversationID string
	Messages       []Message
	ModelHistory   []ModelEntry
}

// NewConversationID generates a client-side conversation identifier of the
// form "conv_<unix millis>_<random token>". The backend treats it as opaque;
// the timestamp component keeps IDs roughly sortable in logs.
func NewConversationID() string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s_%d_%s", conversationIDPrefix, time.Now().UnixMilli(), token)
}

// cloneMessages deep-copies a rendered log, including metadata pointers.
func cloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	for i := range out {
		if out[i].Metadata != nil {
			meta := *out[i].Metadata
			out[i].Metadata = &meta
		}
	}
	return out
}

func cloneModelHistory(entries []ModelEntry) []ModelEntry {
	if entries == nil {
		return nil
	}
	out := make([]ModelEntry, len(entries))
	copy(out, entries)
	return out
}
