// Package api provides a client for the logo generation backend's HTTP API.
// It covers chat classification, image generation, conversation history,
// user profile, and model capability discovery.
package api

import "github.com/nhahub/NHA-065/internal/chat"

// API endpoint paths.
const (
	EndpointChat             = "/api/chat"
	EndpointGenerateFromChat = "/api/generate-from-chat"
	EndpointHistory          = "/api/history"
	EndpointHistorySearch    = "/api/history/search"
	EndpointHistoryStats     = "/api/history/stats"
	EndpointHistoryExport    = "/api/history/export"
	EndpointProfile          = "/api/user/profile"
	EndpointUnsubscribe      = "/api/unsubscribe"
	EndpointLoras            = "/api/model/loras"
	EndpointModelStatus      = "/api/model/status"
)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	// Message is the user's prompt.
	Message string `json:"message"`

	// ConversationHistory is the model-facing transcript replayed so the
	// backend's chat model keeps context across turns.
	ConversationHistory []chat.ModelEntry `json:"conversation_history"`

	// ConversationID groups the exchange server-side. Client-generated for
	// new conversations.
	ConversationID string `json:"conversation_id,omitempty"`

	// UseWebSearch asks the backend to ground the reply with a web search.
	UseWebSearch bool `json:"use_web_search,omitempty"`
}

// ChatResponse is the classification/answer result of POST /api/chat.
type ChatResponse struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`

	// IsImageRequest reports that the message asked for an image.
	IsImageRequest bool `json:"is_image_request"`
	// NeedsGeneration reports that a follow-up generation call should run.
	NeedsGeneration bool `json:"needs_generation"`
	// ImagePrompt is the refined prompt to pass to generation.
	ImagePrompt string `json:"image_prompt"`

	// ChatEntryID links the generation call back to the stored exchange.
	ChatEntryID int64 `json:"chat_entry_id,omitempty"`

	// NeedsUpgrade is set when the free-tier quota blocked generation.
	NeedsUpgrade bool `json:"needs_upgrade"`
	// RemainingPrompts is the free-tier allowance left, null for Pro users.
	RemainingPrompts *int `json:"remaining_prompts"`

	// Photo confirmation flow: the backend found a candidate reference photo
	// and wants the user to confirm before conditioning on it.
	AwaitingPhotoConfirmation bool   `json:"awaiting_photo_confirmation"`
	PhotoResult               string `json:"photo_result,omitempty"`
	PhotoConfirmed            bool   `json:"photo_confirmed"`

	Error string `json:"error,omitempty"`
}

// GenerateRequest is the body of POST /api/generate-from-chat.
type GenerateRequest struct {
	ImagePrompt    string `json:"image_prompt"`
	ConversationID string `json:"conversation_id,omitempty"`
	ChatEntryID    int64  `json:"chat_entry_id,omitempty"`

	UseLoRA      bool   `json:"use_lora"`
	LoRAFilename string `json:"lora_filename,omitempty"`
	NumSteps     int    `json:"num_steps"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`

	UseIPAdapter   bool    `json:"use_ip_adapter"`
	IPAdapterScale float64 `json:"ip_adapter_scale"`
	ReferenceImage string  `json:"reference_image,omitempty"`
}

// GenerateMetadata describes a completed generation.
type GenerateMetadata struct {
	Model          string  `json:"model"`
	Steps          int     `json:"steps"`
	Dimensions     string  `json:"dimensions"`
	Lora           string  `json:"lora,omitempty"`
	IPAdapterScale float64 `json:"ip_adapter_scale,omitempty"`
	Timestamp      string  `json:"timestamp"`
}

// GenerateResponse is the result of POST /api/generate-from-chat.
type GenerateResponse struct {
	Success bool `json:"success"`

	// Image is a data URI containing the generated image.
	Image string `json:"image"`
	// Filename is the suggested download name.
	Filename string `json:"filename"`

	Metadata         GenerateMetadata `json:"metadata"`
	RemainingPrompts *int             `json:"remaining_prompts"`

	Error string `json:"error,omitempty"`
}

// ConversationSummary is one entry of the grouped history listing.
type ConversationSummary struct {
	ConversationID string `json:"conversation_id"`
	Preview        string `json:"preview"`
	LastUpdated    string `json:"last_updated"`
	MessageCount   int    `json:"message_count"`
}

// HistoryEntry is one stored exchange inside a conversation. Legacy flat
// history listings return these directly.
type HistoryEntry struct {
	ID             int64  `json:"id"`
	ConversationID string `json:"conversation_id,omitempty"`
	UserMessage    string `json:"user_message"`
	AIResponse     string `json:"ai_response"`
	ImagePrompt    string `json:"image_prompt,omitempty"`
	ImagePath      string `json:"image_path,omitempty"`
	MessageType    string `json:"message_type"`
	Timestamp      string `json:"timestamp"`
	Preview        string `json:"preview,omitempty"`
}

// Message types for HistoryEntry.MessageType.
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
)

// historyListResponse is the body of GET /api/history. Newer backends return
// conversation groups; earlier variants return a flat history array. Both
// fields are decoded and the client folds legacy entries into summaries.
type historyListResponse struct {
	Success       bool                  `json:"success"`
	Conversations []ConversationSummary `json:"conversations"`
	History       []HistoryEntry        `json:"history"`
	Error         string                `json:"error,omitempty"`
}

// conversationResponse is the body of GET /api/history/{id}.
type conversationResponse struct {
	Success  bool           `json:"success"`
	Messages []HistoryEntry `json:"messages"`
	// Legacy single-item variant.
	HistoryItem *HistoryEntry `json:"history,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// HistoryStats summarizes a user's stored history.
type HistoryStats struct {
	TotalMessages    int    `json:"total_messages"`
	TextMessages     int    `json:"text_messages"`
	ImageMessages    int    `json:"image_messages"`
	FirstMessageDate string `json:"first_message_date,omitempty"`
	UserEmail        string `json:"user_email,omitempty"`
	IsPro            bool   `json:"is_pro"`
}

// Profile is the user's account state as reported by the backend.
type Profile struct {
	Email       string `json:"email"`
	FirstName   string `json:"fname"`
	LastName    string `json:"lname"`
	IsPro       bool   `json:"is_pro"`
	PromptCount int    `json:"prompt_count"`
}

// FreeDailyLimit is the free-tier generation allowance per day.
const FreeDailyLimit = 5

// ModelStatus reports which backend model components are loaded.
type ModelStatus struct {
	BaseModelLoaded bool   `json:"base_model_loaded"`
	LoraLoaded      bool   `json:"lora_loaded"`
	IPAdapterLoaded bool   `json:"ip_adapter_loaded"`
	Device          string `json:"device"`
	ModelID         string `json:"model_id"`
}

// ExportPayload is the body of GET /api/history/export.
type ExportPayload struct {
	Success    bool           `json:"success"`
	ExportDate string         `json:"export_date,omitempty"`
	UserEmail  string         `json:"user_email,omitempty"`
	TotalItems int            `json:"total_items"`
	History    []HistoryEntry `json:"history"`
	Error      string         `json:"error,omitempty"`
}

// statusResponse covers endpoints that return only success and error.
type statusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// profileResponse wraps profile fetch/save results.
type profileResponse struct {
	Success bool    `json:"success"`
	Profile Profile `json:"profile"`
	Error   string  `json:"error,omitempty"`
}

// lorasResponse is the body of GET /api/model/loras.
type lorasResponse struct {
	Success     bool     `json:"success"`
	Loras       []string `json:"loras"`
	CurrentLora string   `json:"current_lora"`
	Count       int      `json:"count"`
	Error       string   `json:"error,omitempty"`
}

// modelStatusResponse is the body of GET /api/model/status.
type modelStatusResponse struct {
	Success bool        `json:"success"`
	Model   ModelStatus `json:"model"`
	Error   string      `json:"error,omitempty"`
}

// statsResponse is the body of GET /api/history/stats.
type statsResponse struct {
	Success bool         `json:"success"`
	Stats   HistoryStats `json:"stats"`
	Error   string       `json:"error,omitempty"`
}

// searchResponse is the body of GET /api/history/search.
type searchResponse struct {
	Success bool           `json:"success"`
	History []HistoryEntry `json:"history"`
	Query   string         `json:"query"`
	Error   string         `json:"error,omitempty"`
}
