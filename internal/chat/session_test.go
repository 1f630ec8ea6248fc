package chat

import (
	"strings"
	"testing"
)

func TestNewSessionGeneratesID(t *testing.T) {
	s := NewSession()

	if s.ID() == "" {
		t.Fatal("NewSession() should generate a conversation ID")
	}

	if !strings.HasPrefix(s.ID(), "conv_") {
		t.Errorf("Conversation ID should start with conv_, got %q", s.ID())
	}
}

func TestNewConversationIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewConversationID()
		if seen[id] {
			t.Fatalf("Duplicate conversation ID generated: %q", id)
		}
		seen[id] = true
	}
}

func TestAppendUserMessage(t *testing.T) {
	s := NewSession()

	if err := s.AppendUserMessage("make me a logo"); err != nil {
		t.Fatalf("AppendUserMessage failed: %v", err)
	}

	messages := s.Messages()
	if len(messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(messages))
	}
	if messages[0].Role != RoleUser {
		t.Errorf("Expected role %q, got %q", RoleUser, messages[0].Role)
	}
	if messages[0].Text != "make me a logo" {
		t.Errorf("Unexpected text: %q", messages[0].Text)
	}

	history := s.ModelHistory()
	if len(history) != 1 {
		t.Fatalf("Expected 1 model entry, got %d", len(history))
	}
	if history[0].Role != RoleUser || history[0].Content != "make me a logo" {
		t.Errorf("Unexpected model entry: %+v", history[0])
	}
}

func TestAppendUserMessageTrimsWhitespace(t *testing.T) {
	s := NewSession()

	if err := s.AppendUserMessage("  hello  "); err != nil {
		t.Fatalf("AppendUserMessage failed: %v", err)
	}

	if got := s.Messages()[0].Text; got != "hello" {
		t.Errorf("Expected trimmed text, got %q", got)
	}
}

func TestAppendUserMessageRejectsBlank(t *testing.T) {
	s := NewSession()

	for _, input := range []string{"", "   ", "\t\n"} {
		if err := s.AppendUserMessage(input); err != ErrEmptyMessage {
			t.Errorf("AppendUserMessage(%q) = %v, want ErrEmptyMessage", input, err)
		}
	}

	if s.Len() != 0 {
		t.Errorf("Blank input should append nothing, got %d messages", s.Len())
	}
	if len(s.ModelHistory()) != 0 {
		t.Error("Blank input should not extend model history")
	}
}

func TestAppendAssistantReplyText(t *testing.T) {
	s := NewSession()

	s.AppendAssistantReply("Here is your logo concept.", "", nil, "")

	messages := s.Messages()
	if len(messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(messages))
	}
	if messages[0].Role != RoleAssistant {
		t.Errorf("Expected role %q, got %q", RoleAssistant, messages[0].Role)
	}

	if len(s.ModelHistory()) != 1 {
		t.Error("Text reply should extend model history")
	}
}

func TestAppendAssistantReplyImageOnly(t *testing.T) {
	s := NewSession()

	meta := &GenerationMetadata{Model: "sdxl-turbo", Steps: 4, Dimensions: "1024x1024"}
	s.AppendAssistantReply("", "data:image/png;base64,abc", meta, "logo_123.png")

	messages := s.Messages()
	if len(messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(messages))
	}
	if messages[0].ImageRef == "" {
		t.Error("Image message should carry the image reference")
	}
	if messages[0].Filename != "logo_123.png" {
		t.Errorf("Unexpected filename: %q", messages[0].Filename)
	}
	if messages[0].Metadata == nil || messages[0].Metadata.Model != "sdxl-turbo" {
		t.Error("Image message should carry generation metadata")
	}

	// Image-only turns do not extend the dialogue the chat API sees.
	if len(s.ModelHistory()) != 0 {
		t.Error("Image-only reply should not extend model history")
	}
}

func TestAppendAssistantReplyEmptyPanics(t *testing.T) {
	s := NewSession()

	defer func() {
		if recover() == nil {
			t.Error("AppendAssistantReply with no text and no image should panic")
		}
	}()
	s.AppendAssistantReply("", "", nil, "")
}

func TestAppendErrorMessage(t *testing.T) {
	s := NewSession()

	s.AppendErrorMessage("Chat failed. Please try again.")

	messages := s.Messages()
	if len(messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(messages))
	}
	if !messages[0].IsError {
		t.Error("Error message should be flagged")
	}

	// Error turns are presentation-only.
	if len(s.ModelHistory()) != 0 {
		t.Error("Error message should not extend model history")
	}
}

func TestAppendErrorMessageDefaultText(t *testing.T) {
	s := NewSession()

	s.AppendErrorMessage("")

	if got := s.Messages()[0].Text; got == "" {
		t.Error("Empty error text should fall back to a default")
	}
}

func TestModelHistoryTrimming(t *testing.T) {
	s := NewSession()

	for i := 0; i < MaxModelHistorySize+10; i++ {
		if err := s.AppendUserMessage("message"); err != nil {
			t.Fatalf("AppendUserMessage failed: %v", err)
		}
	}

	if got := len(s.ModelHistory()); got != MaxModelHistorySize {
		t.Errorf("Model history should be capped at %d, got %d", MaxModelHistorySize, got)
	}

	// The rendered log is never trimmed.
	if got := s.Len(); got != MaxModelHistorySize+10 {
		t.Errorf("Rendered log should keep all %d messages, got %d", MaxModelHistorySize+10, got)
	}
}

func TestMessagesReturnsCopy(t *testing.T) {
	s := NewSession()
	if err := s.AppendUserMessage("original"); err != nil {
		t.Fatalf("AppendUserMessage failed: %v", err)
	}

	messages := s.Messages()
	messages[0].Text = "mutated"

	if got := s.Messages()[0].Text; got != "original" {
		t.Errorf("Mutating the returned slice should not affect the session, got %q", got)
	}
}

func TestStartNewResetsSession(t *testing.T) {
	s := NewSession()
	oldID := s.ID()
	if err := s.AppendUserMessage("hello"); err != nil {
		t.Fatalf("AppendUserMessage failed: %v", err)
	}

	cache := NewCache()
	newID := s.StartNew(cache)

	if newID == oldID {
		t.Error("StartNew should generate a fresh conversation ID")
	}
	if s.Len() != 0 {
		t.Errorf("StartNew should clear messages, got %d", s.Len())
	}
	if len(s.ModelHistory()) != 0 {
		t.Error("StartNew should clear model history")
	}

	// The abandoned conversation must survive in the cache.
	snap, ok := cache.Get(oldID)
	if !ok {
		t.Fatal("StartNew should snapshot the prior conversation into the cache")
	}
	if len(snap.Messages) != 1 || snap.Messages[0].Text != "hello" {
		t.Errorf("Cached snapshot lost content: %+v", snap.Messages)
	}
}

func TestStartNewEmptySessionSkipsCache(t *testing.T) {
	s := NewSession()
	cache := NewCache()

	s.StartNew(cache)

	if cache.Len() != 0 {
		t.Errorf("Empty conversation should not be cached, got %d entries", cache.Len())
	}
}

func TestStartNewNilCache(t *testing.T) {
	s := NewSession()
	if err := s.AppendUserMessage("hello"); err != nil {
		t.Fatalf("AppendUserMessage failed: %v", err)
	}

	// Should not panic
	s.StartNew(nil)

	if s.Len() != 0 {
		t.Error("StartNew with nil cache should still reset the session")
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s := NewSession()
	if err := s.AppendUserMessage("a cat logo"); err != nil {
		t.Fatalf("AppendUserMessage failed: %v", err)
	}
	s.AppendAssistantReply("How about this?", "", nil, "")
	s.AppendAssistantReply("", "data:image/png;base64,xyz", &GenerationMetadata{Model: "m"}, "logo.png")

	snap := s.Snapshot()
	id := s.ID()

	other := NewSession()
	other.Restore(snap)

	if other.ID() != id {
		t.Errorf("Restore should adopt the snapshot's ID, got %q", other.ID())
	}
	if other.Len() != 3 {
		t.Fatalf("Expected 3 restored messages, got %d", other.Len())
	}

	restored := other.Messages()
	original := s.Messages()
	for i := range original {
		if restored[i].Text != original[i].Text || restored[i].ImageRef != original[i].ImageRef {
			t.Errorf("Message %d differs after restore: %+v vs %+v", i, restored[i], original[i])
		}
	}

	if len(other.ModelHistory()) != len(s.ModelHistory()) {
		t.Error("Model history should survive the round trip")
	}
}

func TestRestoreIsolatesSnapshot(t *testing.T) {
	s := NewSession()
	if err := s.AppendUserMessage("hello"); err != nil {
		t.Fatalf("AppendUserMessage failed: %v", err)
	}
	snap := s.Snapshot()

	other := NewSession()
	other.Restore(snap)
	snap.Messages[0].Text = "mutated"

	if got := other.Messages()[0].Text; got != "hello" {
		t.Errorf("Restore should deep-copy the snapshot, got %q", got)
	}
}

func TestEpochChangesOnSwitch(t *testing.T) {
	s := NewSession()
	epoch := s.Epoch()

	if !s.LiveAt(epoch) {
		t.Fatal("Session should be live at its own epoch")
	}

	s.StartNew(nil)
	if s.LiveAt(epoch) {
		t.Error("StartNew should invalidate the old epoch")
	}

	epoch = s.Epoch()
	s.Restore(Snapshot{ConversationID: "conv_1_abc"})
	if s.LiveAt(epoch) {
		t.Error("Restore should invalidate the old epoch")
	}
}

func TestEpochStableWithinConversation(t *testing.T) {
	s := NewSession()
	epoch := s.Epoch()

	if err := s.AppendUserMessage("hello"); err != nil {
		t.Fatalf("AppendUserMessage failed: %v", err)
	}
	s.AppendAssistantReply("hi", "", nil, "")

	if !s.LiveAt(epoch) {
		t.Error("Appending messages should not change the epoch")
	}
}
