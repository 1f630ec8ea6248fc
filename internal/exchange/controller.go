// Package exchange drives the lifecycle of a single chat exchange: the
// classification call, the simulated text reveal, the optional generation
// call, and the bookkeeping that follows (cache snapshot, history upsert).
//
// # State machine
//
// One exchange moves through:
//
//	Idle -> AwaitingClassification -> {AwaitingGeneration | Idle}
//
// Idle is both entry and terminal. The send control is disabled on leaving
// Idle and re-enabled on every return path, success or failure, so a failed
// generation can never leave the UI stuck. A failure inside
// AwaitingGeneration appends an error message and still returns to Idle.
//
// No two exchanges run concurrently for the same conversation: SendMessage
// rejects re-entry while an exchange is in flight.
package exchange

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nhahub/NHA-065/internal/api"
	"github.com/nhahub/NHA-065/internal/chat"
	"github.com/nhahub/NHA-065/internal/history"
	"github.com/nhahub/NHA-065/internal/logging"
	"github.com/nhahub/NHA-065/internal/settings"
	"github.com/nhahub/NHA-065/internal/stream"
)

// Phase is the controller's position in the exchange state machine.
type Phase int

const (
	// PhaseIdle means no exchange is in flight.
	PhaseIdle Phase = iota
	// PhaseAwaitingClassification means the chat call is in flight.
	PhaseAwaitingClassification
	// PhaseAwaitingGeneration means the generation call is in flight.
	PhaseAwaitingGeneration
)

// ErrBusy is returned when SendMessage is called while an exchange is
// already in flight.
var ErrBusy = errors.New("exchange already in progress")

// Generic fallback strings shown when the backend gives no error detail.
const (
	fallbackChatError     = "Chat failed. Please try again."
	fallbackGenerateError = "Failed to generate image. Please try again."
	fallbackNetworkError  = "Network error. Please check your connection."
)

// Backend is the slice of the API client the controller needs. It is an
// interface so tests can substitute a fake.
type Backend interface {
	Chat(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error)
	GenerateFromChat(ctx context.Context, req api.GenerateRequest) (*api.GenerateResponse, error)
	ListConversations(ctx context.Context) ([]api.ConversationSummary, error)
	GetConversation(ctx context.Context, conversationID string) ([]api.HistoryEntry, error)
	DeleteConversation(ctx context.Context, conversationID string) error
	ClearHistory(ctx context.Context) error
}

// Listener receives presentation events from the controller. The render
// layer implements it; every method may be called from the goroutine running
// the exchange. Use Funcs for a partial implementation.
type Listener interface {
	// SendEnabled toggles the send control.
	SendEnabled(enabled bool)
	// RevealUpdate delivers a cumulative prefix of the assistant reply
	// while it streams in.
	RevealUpdate(partial string)
	// MessageAppended reports a finalized message added to the rendered log.
	MessageAppended(msg chat.Message)
	// GeneratingChanged toggles the "generating" indicator. It becomes true
	// only after the text reveal has fully finalized.
	GeneratingChanged(active bool)
	// HistoryChanged reports that the history index was modified.
	HistoryChanged()
	// Notice surfaces a user-facing notification outside the transcript.
	Notice(text string)
}

// Funcs is a Listener assembled from optional functions; nil fields are
// no-ops.
type Funcs struct {
	OnSendEnabled       func(bool)
	OnRevealUpdate      func(string)
	OnMessageAppended   func(chat.Message)
	OnGeneratingChanged func(bool)
	OnHistoryChanged    func()
	OnNotice            func(string)
}

func (f Funcs) SendEnabled(enabled bool) {
	if f.OnSendEnabled != nil {
		f.OnSendEnabled(enabled)
	}
}

func (f Funcs) RevealUpdate(partial string) {
	if f.OnRevealUpdate != nil {
		f.OnRevealUpdate(partial)
	}
}

func (f Funcs) MessageAppended(msg chat.Message) {
	if f.OnMessageAppended != nil {
		f.OnMessageAppended(msg)
	}
}

func (f Funcs) GeneratingChanged(active bool) {
	if f.OnGeneratingChanged != nil {
		f.OnGeneratingChanged(active)
	}
}

func (f Funcs) HistoryChanged() {
	if f.OnHistoryChanged != nil {
		f.OnHistoryChanged()
	}
}

func (f Funcs) Notice(text string) {
	if f.OnNotice != nil {
		f.OnNotice(text)
	}
}

// Result summarizes a completed exchange for the caller.
type Result struct {
	// Reply is the assistant's conversational text.
	Reply string
	// ImageGenerated reports that an image message was appended.
	ImageGenerated bool
	// Failed reports that the exchange ended in an error message.
	Failed bool
	// NeedsUpgrade reports that the free-tier quota blocked generation.
	NeedsUpgrade bool
	// AwaitingPhotoConfirmation reports that the backend is waiting for the
	// user to confirm a candidate reference photo.
	AwaitingPhotoConfirmation bool
	// PhotoResult is the candidate reference photo found by the backend,
	// surfaced as a notice while confirmation is pending.
	PhotoResult string
	// RemainingPrompts is the free-tier allowance left, nil for Pro users or
	// when the backend did not report it.
	RemainingPrompts *int
}

// Controller owns the session, cache, history index, and settings, and runs
// exchanges against the backend. Its mutex serializes all state access, so
// the render layer may call it from command goroutines.
type Controller struct {
	mu sync.Mutex

	backend  Backend
	session  *chat.Session
	cache    *chat.Cache
	index    *history.Index
	settings settings.Settings
	listener Listener
	log      *logging.Logger

	revealDelay  time.Duration
	useWebSearch bool
	phase        Phase
}

// Option configures a Controller.
type Option func(*Controller)

// WithRevealDelay overrides the inter-word reveal delay. Zero disables the
// pause; tests use this.
func WithRevealDelay(d time.Duration) Option {
	return func(c *Controller) { c.revealDelay = d }
}

// WithListener sets the presentation listener.
func WithListener(l Listener) Option {
	return func(c *Controller) { c.listener = l }
}

// WithSettings sets the initial generation settings.
func WithSettings(s settings.Settings) Option {
	return func(c *Controller) { c.settings = s }
}

// NewController creates a controller with a fresh session, empty cache, and
// empty history index. logger must not be nil.
func NewController(backend Backend, logger *logging.Logger, opts ...Option) *Controller {
	c := &Controller{
		backend:     backend,
		session:     chat.NewSession(),
		cache:       chat.NewCache(),
		index:       history.NewIndex(),
		settings:    settings.Default(),
		listener:    Funcs{},
		log:         logger,
		revealDelay: stream.DefaultDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConversationID returns the active conversation identifier.
func (c *Controller) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.ID()
}

// Phase returns the controller's current exchange phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Messages returns a copy of the active conversation's rendered log.
func (c *Controller) Messages() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Messages()
}

// HistoryItems returns the sidebar list with the active flag derived from
// the current conversation.
func (c *Controller) HistoryItems() []history.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.MarkActive(c.session.ID())
}

// Settings returns the current generation settings.
func (c *Controller) Settings() settings.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// UpdateSettings validates, normalizes, and installs new generation
// settings. Settings mutate only through here, synchronously from panel
// controls.
func (c *Controller) UpdateSettings(s settings.Settings) error {
	s.Normalize()
	if err := s.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = s
	return nil
}

// SetListener replaces the presentation listener. Pass nil to silence
// events. Must not be called while an exchange is in flight.
func (c *Controller) SetListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l == nil {
		l = Funcs{}
	}
	c.listener = l
}

// SetWebSearch toggles web-search grounding for subsequent chat calls.
func (c *Controller) SetWebSearch(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.useWebSearch = enabled
}

// SendMessage runs one full exchange for text. It returns ErrBusy when an
// exchange is already in flight and chat.ErrEmptyMessage for blank input; in
// both cases nothing is sent.
//
// All remote failures are converted into an error message in the
// conversation and reported through Result.Failed rather than a returned
// error; the returned error covers only local preconditions.
func (c *Controller) SendMessage(ctx context.Context, text string) (*Result, error) {
	c.mu.Lock()
	if c.phase != PhaseIdle {
		c.mu.Unlock()
		return nil, ErrBusy
	}

	if err := c.session.AppendUserMessage(text); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	userMsg := c.session.Messages()[c.session.Len()-1]

	c.phase = PhaseAwaitingClassification
	epoch := c.session.Epoch()
	conversationID := c.session.ID()
	modelHistory := c.session.ModelHistory()
	// The user's turn is already in the model history; the transcript sent
	// to the backend must end just before it, matching how the web client
	// replays context.
	modelHistory = modelHistory[:len(modelHistory)-1]
	useWebSearch := c.useWebSearch
	c.mu.Unlock()

	c.listener.SendEnabled(false)
	c.listener.MessageAppended(userMsg)

	result := &Result{}
	defer func() {
		c.mu.Lock()
		c.phase = PhaseIdle
		c.mu.Unlock()
		c.listener.SendEnabled(true)
	}()

	resp, err := c.backend.Chat(ctx, api.ChatRequest{
		Message:             strings.TrimSpace(text),
		ConversationHistory: modelHistory,
		ConversationID:      conversationID,
		UseWebSearch:        useWebSearch,
	})
	if err != nil {
		c.log.Warn("chat call failed: %v", err)
		c.appendError(epoch, errorText(err, fallbackChatError))
		result.Failed = true
		return result, nil
	}

	result.Reply = resp.Response
	result.NeedsUpgrade = resp.NeedsUpgrade
	result.AwaitingPhotoConfirmation = resp.AwaitingPhotoConfirmation
	result.PhotoResult = resp.PhotoResult
	result.RemainingPrompts = resp.RemainingPrompts

	// Reveal the conversational text in full before any generation phase;
	// text and image phases never interleave visually.
	c.revealReply(ctx, epoch, resp.Response)
	if !c.appendAssistantText(epoch, resp.Response) {
		// Session moved to another conversation mid-exchange; the reply is
		// abandoned silently and bookkeeping is skipped.
		return result, nil
	}

	if resp.AwaitingPhotoConfirmation && resp.PhotoResult != "" {
		c.listener.Notice("Found a reference photo: " + resp.PhotoResult)
	}

	if resp.IsImageRequest && resp.NeedsGeneration && resp.ImagePrompt != "" {
		c.runGeneration(ctx, epoch, conversationID, resp, result)
	}

	c.finishExchange(ctx, epoch, conversationID, strings.TrimSpace(text), resp)
	return result, nil
}

// runGeneration executes the AwaitingGeneration sub-state. Failures append
// an error message and fall through; the deferred guard in SendMessage
// restores Idle and re-enables the send control.
func (c *Controller) runGeneration(ctx context.Context, epoch uint64, conversationID string, chatResp *api.ChatResponse, result *Result) {
	c.mu.Lock()
	c.phase = PhaseAwaitingGeneration
	s := c.settings
	c.mu.Unlock()

	c.listener.GeneratingChanged(true)
	defer c.listener.GeneratingChanged(false)

	resp, err := c.backend.GenerateFromChat(ctx, api.GenerateRequest{
		ImagePrompt:    chatResp.ImagePrompt,
		ConversationID: conversationID,
		ChatEntryID:    chatResp.ChatEntryID,
		UseLoRA:        s.UseLoRA,
		LoRAFilename:   s.LoRAFilename,
		NumSteps:       s.Steps,
		Width:          s.Width,
		Height:         s.Height,
		UseIPAdapter:   s.UseIPAdapter,
		IPAdapterScale: s.IPAdapterScale,
		ReferenceImage: s.ReferenceImage,
	})
	if err != nil {
		c.log.Warn("generation failed: %v", err)
		c.appendError(epoch, errorText(err, fallbackGenerateError))
		result.Failed = true
		return
	}

	meta := &chat.GenerationMetadata{
		Model:          resp.Metadata.Model,
		Steps:          resp.Metadata.Steps,
		Dimensions:     resp.Metadata.Dimensions,
		LoRA:           resp.Metadata.Lora,
		IPAdapterScale: resp.Metadata.IPAdapterScale,
		Timestamp:      resp.Metadata.Timestamp,
	}

	c.mu.Lock()
	if !c.session.LiveAt(epoch) {
		c.mu.Unlock()
		return
	}
	c.session.AppendAssistantReply("", resp.Image, meta, resp.Filename)
	msg := c.session.Messages()[c.session.Len()-1]
	c.mu.Unlock()

	c.listener.MessageAppended(msg)
	result.ImageGenerated = true
	result.RemainingPrompts = resp.RemainingPrompts
}

// revealReply streams the reply text word by word through the listener. The
// reveal checks session liveness before each emission, so a conversation
// switch mid-reveal stops updates without aborting the exchange's network
// side.
func (c *Controller) revealReply(ctx context.Context, epoch uint64, text string) {
	if text == "" {
		return
	}
	r := stream.New(text, c.revealDelay, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.session.LiveAt(epoch)
	})
	if err := r.Run(ctx, c.listener.RevealUpdate); err != nil && !errors.Is(err, context.Canceled) {
		c.log.Debug("reveal interrupted: %v", err)
	}
}

// appendAssistantText finalizes the revealed reply into the session.
// Reports false when the session is no longer on the exchange's conversation.
func (c *Controller) appendAssistantText(epoch uint64, text string) bool {
	if text == "" {
		return true
	}
	c.mu.Lock()
	if !c.session.LiveAt(epoch) {
		c.mu.Unlock()
		return false
	}
	c.session.AppendAssistantReply(text, "", nil, "")
	msg := c.session.Messages()[c.session.Len()-1]
	c.mu.Unlock()

	c.listener.MessageAppended(msg)
	return true
}

func (c *Controller) appendError(epoch uint64, text string) {
	c.mu.Lock()
	if !c.session.LiveAt(epoch) {
		c.mu.Unlock()
		return
	}
	c.session.AppendErrorMessage(text)
	msg := c.session.Messages()[c.session.Len()-1]
	c.mu.Unlock()

	c.listener.MessageAppended(msg)
}

// finishExchange refreshes the cache snapshot and optimistically updates the
// history index after a confirmed exchange. Failed exchanges skip this, so
// the cache and index never see half-updated state.
func (c *Controller) finishExchange(ctx context.Context, epoch uint64, conversationID, userText string, resp *api.ChatResponse) {
	c.mu.Lock()
	if !c.session.LiveAt(epoch) {
		c.mu.Unlock()
		return
	}
	snap := c.session.Snapshot()
	messageCount := c.session.Len()
	c.cache.Put(conversationID, snap)
	c.index.UpsertLocal(history.Summary{
		ConversationID: conversationID,
		Preview:        history.Preview(userText, resp.Response, resp.ImagePrompt),
		LastUpdated:    time.Now(),
		MessageCount:   messageCount,
	})
	c.mu.Unlock()

	c.listener.HistoryChanged()
}

// NewChat snapshots the current conversation into the cache (when it has
// content), starts a fresh one, and returns the new conversation ID. No
// network call is made. Any in-flight reveal detaches via the epoch change.
func (c *Controller) NewChat() string {
	c.mu.Lock()
	id := c.session.StartNew(c.cache)
	c.mu.Unlock()

	c.listener.HistoryChanged()
	return id
}

// SwitchTo makes conversationID the active conversation. The current
// conversation is snapshotted into the cache first. A cache hit restores
// without a network round trip; otherwise the conversation is fetched from
// the history store. Returns api.ErrNotFound (after surfacing a notice) when
// the conversation no longer exists; in-memory state is left on a fresh
// conversation in that case rather than corrupted.
func (c *Controller) SwitchTo(ctx context.Context, conversationID string) error {
	c.mu.Lock()
	if conversationID == c.session.ID() {
		c.mu.Unlock()
		return nil
	}
	if c.session.Len() > 0 {
		c.cache.Put(c.session.ID(), c.session.Snapshot())
	}
	snap, ok := c.cache.Get(conversationID)
	if ok {
		c.session.Restore(snap)
		c.mu.Unlock()
		c.listener.HistoryChanged()
		return nil
	}
	c.mu.Unlock()

	entries, err := c.backend.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			c.listener.Notice("Could not load conversation: it no longer exists.")
		} else {
			c.log.Warn("load conversation %s failed: %v", conversationID, err)
			c.listener.Notice("Failed to load conversation.")
		}
		return err
	}

	restored := chat.Snapshot{
		ConversationID: conversationID,
		Messages:       MessagesFromEntries(entries),
		ModelHistory:   ModelHistoryFromEntries(entries),
	}

	c.mu.Lock()
	c.session.Restore(restored)
	c.cache.Put(conversationID, restored)
	c.mu.Unlock()

	c.listener.HistoryChanged()
	return nil
}

// RefreshHistory reloads the sidebar list from the remote store. Best
// effort: on failure the prior list stays and no UI error is surfaced.
func (c *Controller) RefreshHistory(ctx context.Context) error {
	summaries, err := c.backend.ListConversations(ctx)
	if err != nil {
		c.log.Debug("history load failed: %v", err)
		return err
	}

	c.mu.Lock()
	c.index.Replace(SummariesFromAPI(summaries))
	c.mu.Unlock()

	c.listener.HistoryChanged()
	return nil
}

// SeedHistory installs summaries without a remote call, used to show the
// locally mirrored list at startup.
func (c *Controller) SeedHistory(summaries []history.Summary) {
	c.mu.Lock()
	c.index.Replace(summaries)
	c.mu.Unlock()

	c.listener.HistoryChanged()
}

// HistorySummaries returns the current sidebar list, for mirroring to the
// local store.
func (c *Controller) HistorySummaries() []history.Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.Items()
}

// DeleteConversation removes one conversation server-side, then drops it
// from the index and invalidates its cache entry. The index and cache are
// touched only after the delete is confirmed. Deleting the active
// conversation starts a new chat.
func (c *Controller) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := c.backend.DeleteConversation(ctx, conversationID); err != nil {
		if errors.Is(err, api.ErrNotFound) {
			// Already gone server-side; treat as deleted locally too.
			c.log.Debug("delete of missing conversation %s", conversationID)
		} else {
			c.listener.Notice("Failed to delete conversation.")
			return err
		}
	}

	c.mu.Lock()
	c.index.Remove(conversationID)
	c.cache.Invalidate(conversationID)
	active := c.session.ID() == conversationID
	if active {
		c.session.StartNew(nil)
	}
	c.mu.Unlock()

	c.listener.HistoryChanged()
	return nil
}

// ClearHistory wipes all server-side history, then the index, cache, and
// active conversation.
func (c *Controller) ClearHistory(ctx context.Context) error {
	if err := c.backend.ClearHistory(ctx); err != nil {
		c.listener.Notice("Failed to clear history.")
		return err
	}

	c.mu.Lock()
	c.index.Clear()
	c.cache.Clear()
	c.session.StartNew(nil)
	c.mu.Unlock()

	c.listener.HistoryChanged()
	return nil
}

// errorText picks the message shown for a failed remote call: backend error
// detail when present, otherwise a class-appropriate fallback.
func errorText(err error, fallback string) string {
	if errors.Is(err, api.ErrBackend) {
		if msg := strings.TrimPrefix(err.Error(), api.ErrBackend.Error()+": "); msg != "" && msg != err.Error() {
			return msg
		}
		return fallback
	}
	if errors.Is(err, api.ErrUnreachable) || errors.Is(err, api.ErrConnectionTimeout) {
		return fallbackNetworkError
	}
	return fallback
}
