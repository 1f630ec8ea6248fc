package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
)

// Default configuration.
const (
	DefaultBaseURL = "http://localhost:5000"
	DefaultTimeout = 60 * time.Second

	// GenerateTimeout is the longer timeout used for the generation call,
	// which runs a diffusion pipeline server-side.
	GenerateTimeout = 5 * time.Minute
)

// Sentinel errors for backend client operations.
var (
	// ErrUnreachable is returned when the backend is not reachable at the
	// configured base URL.
	ErrUnreachable = errors.New("backend not reachable")
	// ErrConnectionTimeout is returned when a request times out.
	ErrConnectionTimeout = errors.New("backend connection timeout")
	// ErrRequestFailed is returned for unexpected HTTP status codes.
	ErrRequestFailed = errors.New("backend request failed")
	// ErrMalformedResponse is returned when a response body cannot be decoded.
	ErrMalformedResponse = errors.New("malformed backend response")
	// ErrBackend is returned when the backend reports success:false. The
	// wrapped message carries the backend's error text when one was given.
	ErrBackend = errors.New("backend error")
	// ErrNotFound is returned when a conversation or history item no longer
	// exists server-side.
	ErrNotFound = errors.New("not found")
)

// TokenSource returns the current bearer token, or "" when the user is
// anonymous. Reading through a function keeps the client current when the
// token changes during the process lifetime.
type TokenSource func() string

// Client talks to the logo generation backend.
type Client struct {
	baseURL    string
	token      TokenSource
	httpClient *http.Client
}

// NewClient creates a client for the backend at baseURL. If baseURL is
// empty, DefaultBaseURL is used. token may be nil for anonymous use; when it
// returns a non-empty string, requests carry an Authorization bearer header.
// Absence of a token degrades silently to anonymous calls.
func NewClient(baseURL string, token TokenSource) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ResolveImageURL turns a server-relative image reference (e.g.
// "/outputs/logo_x.png") into an absolute URL. Data URIs and absolute URLs
// pass through unchanged.
func (c *Client) ResolveImageURL(ref string) string {
	if ref == "" || strings.HasPrefix(ref, "data:") {
		return ref
	}
	if u, err := url.Parse(ref); err == nil && u.IsAbs() {
		return ref
	}
	return c.baseURL + ref
}

// Chat sends the user's message with the model-facing history for
// classification and a conversational answer.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.postJSON(ctx, EndpointChat, req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return &resp, backendError(resp.Error)
	}
	return &resp, nil
}

// GenerateFromChat runs image generation for a prompt the chat step refined.
// It uses a longer timeout than other calls.
func (c *Client) GenerateFromChat(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, GenerateTimeout)
	defer cancel()

	var resp GenerateResponse
	if err := c.postJSON(ctx, EndpointGenerateFromChat, req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return &resp, backendError(resp.Error)
	}
	return &resp, nil
}

// ListConversations fetches the grouped history listing. Legacy backends
// that return a flat history array are folded into one summary per entry.
func (c *Client) ListConversations(ctx context.Context) ([]ConversationSummary, error) {
	var resp historyListResponse
	if err := c.getJSON(ctx, EndpointHistory, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, backendError(resp.Error)
	}
	if resp.Conversations != nil {
		return resp.Conversations, nil
	}
	summaries := make([]ConversationSummary, 0, len(resp.History))
	for _, e := range resp.History {
		id := e.ConversationID
		if id == "" {
			id = fmt.Sprintf("%d", e.ID)
		}
		summaries = append(summaries, ConversationSummary{
			ConversationID: id,
			Preview:        e.Preview,
			LastUpdated:    e.Timestamp,
			MessageCount:   1,
		})
	}
	return summaries, nil
}

// GetConversation fetches the full message list for one conversation.
// Returns ErrNotFound when the conversation no longer exists.
func (c *Client) GetConversation(ctx context.Context, conversationID string) ([]HistoryEntry, error) {
	var resp conversationResponse
	err := c.getJSON(ctx, EndpointHistory+"/"+url.PathEscape(conversationID), nil, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		if resp.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, resp.Error)
		}
		return nil, ErrNotFound
	}
	if resp.Messages != nil {
		return resp.Messages, nil
	}
	if resp.HistoryItem != nil {
		return []HistoryEntry{*resp.HistoryItem}, nil
	}
	return nil, nil
}

// DeleteConversation removes one conversation server-side.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	var resp statusResponse
	path := EndpointHistory + "/conversation/" + url.PathEscape(conversationID)
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return backendError(resp.Error)
	}
	return nil
}

// ClearHistory removes all stored conversations for the user.
func (c *Client) ClearHistory(ctx context.Context) error {
	var resp statusResponse
	if err := c.doJSON(ctx, http.MethodDelete, EndpointHistory, nil, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return backendError(resp.Error)
	}
	return nil
}

// SearchHistory searches stored exchanges by keyword.
func (c *Client) SearchHistory(ctx context.Context, query string) ([]HistoryEntry, error) {
	var resp searchResponse
	params := url.Values{"q": {query}}
	if err := c.getJSON(ctx, EndpointHistorySearch, params, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, backendError(resp.Error)
	}
	return resp.History, nil
}

// HistoryStats fetches aggregate statistics about the user's history.
func (c *Client) HistoryStats(ctx context.Context) (*HistoryStats, error) {
	var resp statsResponse
	if err := c.getJSON(ctx, EndpointHistoryStats, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, backendError(resp.Error)
	}
	return &resp.Stats, nil
}

// ExportHistory fetches the user's complete history for local export.
func (c *Client) ExportHistory(ctx context.Context) (*ExportPayload, error) {
	var resp ExportPayload
	if err := c.getJSON(ctx, EndpointHistoryExport, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, backendError(resp.Error)
	}
	return &resp, nil
}

// GetProfile fetches the user's profile and plan state.
func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	var resp profileResponse
	if err := c.getJSON(ctx, EndpointProfile, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, backendError(resp.Error)
	}
	return &resp.Profile, nil
}

// SaveProfile updates the user's first and last name.
func (c *Client) SaveProfile(ctx context.Context, firstName, lastName string) (*Profile, error) {
	body := map[string]string{"fname": firstName, "lname": lastName}
	var resp profileResponse
	if err := c.postJSON(ctx, EndpointProfile, body, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, backendError(resp.Error)
	}
	return &resp.Profile, nil
}

// Unsubscribe cancels the user's Pro subscription, reverting to the free tier.
func (c *Client) Unsubscribe(ctx context.Context) error {
	var resp statusResponse
	if err := c.postJSON(ctx, EndpointUnsubscribe, struct{}{}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return backendError(resp.Error)
	}
	return nil
}

// ListLoRAs fetches the available LoRA files and the currently active one.
func (c *Client) ListLoRAs(ctx context.Context) ([]string, string, error) {
	var resp lorasResponse
	if err := c.getJSON(ctx, EndpointLoras, nil, &resp); err != nil {
		return nil, "", err
	}
	if !resp.Success {
		return nil, "", backendError(resp.Error)
	}
	return resp.Loras, resp.CurrentLora, nil
}

// ModelStatus fetches which backend model components are loaded.
func (c *Client) ModelStatus(ctx context.Context) (*ModelStatus, error) {
	var resp modelStatusResponse
	if err := c.getJSON(ctx, EndpointModelStatus, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, backendError(resp.Error)
	}
	return &resp.Model, nil
}

// FetchImage downloads raw image bytes from a server-relative or absolute
// URL. Used when saving a history image that is not inlined as a data URI.
func (c *Client) FetchImage(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ResolveImageURL(ref), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, false)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrRequestFailed, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// postJSON issues a POST with a JSON body and decodes the JSON response.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, body, out)
}

// getJSON issues a GET with optional query parameters and decodes the JSON
// response.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, body != nil)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.classifyError(err)
	}
	defer resp.Body.Close()

	// The backend reports failures in the JSON body alongside non-200
	// statuses (400/403/404/500), so the body is decoded regardless and only
	// undecodable responses are rejected on status alone.
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: unexpected status %d", ErrRequestFailed, resp.StatusCode)
		}
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// setHeaders attaches content type and, when a token is available, the
// bearer authorization header.
func (c *Client) setHeaders(req *http.Request, hasBody bool) {
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if t := c.token(); t != "" {
			req.Header.Set("Authorization", "Bearer "+t)
		}
	}
}

// classifyError converts transport errors into sentinel errors.
func (c *Client) classifyError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrConnectionTimeout, err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("%w at %s", ErrUnreachable, c.baseURL)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w at %s: %v", ErrUnreachable, c.baseURL, err)
	}
	return fmt.Errorf("%w: %v", ErrRequestFailed, err)
}

// backendError wraps a success:false response, keeping the backend's error
// text when one was given.
func backendError(msg string) error {
	if msg == "" {
		return ErrBackend
	}
	return fmt.Errorf("%w: %s", ErrBackend, msg)
}
