package exchange

import (
	"path"
	"strings"
	"time"

	"github.com/nhahub/NHA-065/internal/api"
	"github.com/nhahub/NHA-065/internal/chat"
	"github.com/nhahub/NHA-065/internal/history"
)

// placeholderUserMessage is the filler the backend stores for image entries
// created without an explicit user turn. It is not rendered.
const placeholderUserMessage = "Generated image"

// MessagesFromEntries rebuilds a rendered message log from stored history
// entries. Each entry expands to up to three messages: the user's turn, the
// assistant's text, and the generated image.
func MessagesFromEntries(entries []api.HistoryEntry) []chat.Message {
	var msgs []chat.Message
	for _, e := range entries {
		user := strings.TrimSpace(e.UserMessage)
		if user != "" && user != placeholderUserMessage {
			msgs = append(msgs, chat.Message{Role: chat.RoleUser, Text: user})
		}
		if e.AIResponse != "" && e.MessageType != api.MessageTypeImage {
			msgs = append(msgs, chat.Message{Role: chat.RoleAssistant, Text: e.AIResponse})
		}
		if e.MessageType == api.MessageTypeImage && e.ImagePath != "" {
			name := path.Base(strings.ReplaceAll(e.ImagePath, `\`, "/"))
			msgs = append(msgs, chat.Message{
				Role:     chat.RoleAssistant,
				Text:     e.ImagePrompt,
				ImageRef: "/outputs/" + name,
				Filename: name,
				Metadata: &chat.GenerationMetadata{Timestamp: e.Timestamp},
			})
		}
	}
	return msgs
}

// ModelHistoryFromEntries rebuilds the model-facing transcript from stored
// entries, mirroring the user/assistant alternation of the textual turns.
// Image-only entries contribute nothing.
func ModelHistoryFromEntries(entries []api.HistoryEntry) []chat.ModelEntry {
	var out []chat.ModelEntry
	for _, e := range entries {
		user := strings.TrimSpace(e.UserMessage)
		if user != "" && user != placeholderUserMessage {
			out = append(out, chat.ModelEntry{Role: chat.RoleUser, Content: user})
		}
		if e.AIResponse != "" && e.MessageType != api.MessageTypeImage {
			out = append(out, chat.ModelEntry{Role: chat.RoleAssistant, Content: e.AIResponse})
		}
	}
	return out
}

// SummariesFromAPI converts wire summaries into index entries, parsing the
// backend's ISO timestamps. Unparseable timestamps sort last rather than
// failing the load.
func SummariesFromAPI(in []api.ConversationSummary) []history.Summary {
	out := make([]history.Summary, len(in))
	for i, s := range in {
		out[i] = history.Summary{
			ConversationID: s.ConversationID,
			Preview:        s.Preview,
			LastUpdated:    parseTimestamp(s.LastUpdated),
			MessageCount:   s.MessageCount,
		}
	}
	return out
}

// timestampLayouts covers the formats observed from the backend: RFC 3339
// with and without sub-second precision, and Python isoformat without zone.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
