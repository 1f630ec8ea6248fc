package chat

import (
	"errors"
	"strings"
)

// MaxModelHistorySize is the maximum number of model-facing entries kept per
// conversation. When the limit is reached, the oldest entries are dropped so
// requests to the chat API stay bounded. The rendered log is never trimmed.
const MaxModelHistorySize = 100

// ErrEmptyMessage is returned when a user message is empty after trimming.
// No message is appended and no request should be sent.
var ErrEmptyMessage = errors.New("message is empty")

// Session holds the state of the active conversation: its identifier, the
// rendered message log, and the model-facing history.
//
// Session is not thread-safe; see the package documentation.
type Session struct {
	id       string
	messages []Message
	model    []ModelEntry

	// epoch increments every time the session switches to a different
	// conversation (new chat or restore). In-flight work captured against an
	// older epoch must stop applying updates; see Epoch.
	epoch uint64
}

// NewSession creates a session with a freshly generated conversation ID and
// no messages.
func NewSession() *Session {
	return &Session{id: NewConversationID()}
}

// ID returns the active conversation identifier.
func (s *Session) ID() string {
	return s.id
}

// Len returns the number of messages in the rendered log.
func (s *Session) Len() int {
	return len(s.messages)
}

// Epoch returns a counter that changes whenever the session moves to a
// different conversation. A reveal or exchange started under one epoch checks
// it before applying further updates, so work belonging to an abandoned
// conversation goes quiet instead of writing into the wrong one.
func (s *Session) Epoch() uint64 {
	return s.epoch
}

// LiveAt reports whether the session is still on the conversation it was on
// when epoch was captured.
func (s *Session) LiveAt(epoch uint64) bool {
	return s.epoch == epoch
}

// StartNew begins a fresh conversation and returns its identifier.
//
// If the current conversation has any rendered content it is snapshotted into
// cache first, so switching back later loses nothing even if the conversation
// was never persisted server-side. No network call is made.
func (s *Session) StartNew(cache *Cache) string {
	if cache != nil && len(s.messages) > 0 {
		cache.Put(s.id, s.Snapshot())
	}
	s.id = NewConversationID()
	s.messages = nil
	s.model = nil
	s.epoch++
	return s.id
}

// AppendUserMessage appends a user message to both the rendered log and the
// model-facing history.
//
// Returns ErrEmptyMessage if text is empty after trimming; nothing is
// appended in that case. Persistence is not triggered here: the backend
// stores the exchange as a side effect of the chat call that follows.
func (s *Session) AppendUserMessage(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	s.messages = append(s.messages, Message{Role: RoleUser, Text: text})
	s.pushModelEntry(RoleUser, text)
	return nil
}

// AppendAssistantReply appends an assistant message. The message may carry
// text, an image, or both; meta and filename describe the image when present.
//
// A model-facing entry is pushed only when text is non-empty: image-only
// assistant turns do not extend the dialogue the chat API sees.
//
// Panics if both text and imageRef are empty. That is a caller bug, not a
// recoverable condition.
func (s *Session) AppendAssistantReply(text, imageRef string, meta *GenerationMetadata, filename string) {
	if text == "" && imageRef == "" {
		panic("chat: assistant reply with neither text nor image")
	}
	s.messages = append(s.messages, Message{
		Role:     RoleAssistant,
		Text:     text,
		ImageRef: imageRef,
		Metadata: meta,
		Filename: filename,
	})
	if text != "" {
		s.pushModelEntry(RoleAssistant, text)
	}
}

// AppendErrorMessage appends an error turn to the rendered log. Error turns
// are presentation-only and never extend the model-facing history.
func (s *Session) AppendErrorMessage(text string) {
	if text == "" {
		text = "Something went wrong. Please try again."
	}
	s.messages = append(s.messages, Message{Role: RoleAssistant, Text: text, IsError: true})
}

// Messages returns a deep copy of the rendered log.
func (s *Session) Messages() []Message {
	return cloneMessages(s.messages)
}

// ModelHistory returns a copy of the model-facing history.
func (s *Session) ModelHistory() []ModelEntry {
	return cloneModelHistory(s.model)
}

// Snapshot returns an immutable deep copy of the session state for caching.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ConversationID: s.id,
		Messages:       cloneMessages(s.messages),
		ModelHistory:   cloneModelHistory(s.model),
	}
}

// Restore replaces the session state with a previously captured snapshot.
// The snapshot is deep-copied in, so the caller's copy stays independent.
func (s *Session) Restore(snap Snapshot) {
	s.id = snap.ConversationID
	s.messages = cloneMessages(snap.Messages)
	s.model = cloneModelHistory(snap.ModelHistory)
	s.epoch++
}

// pushModelEntry appends to the model-facing history, dropping the oldest
// entries once MaxModelHistorySize is exceeded.
func (s *Session) pushModelEntry(role, content string) {
	s.model = append(s.model, ModelEntry{Role: role, Content: content})
	if excess := len(s.model) - MaxModelHistorySize; excess > 0 {
		s.model = s.model[excess:]
	}
}
