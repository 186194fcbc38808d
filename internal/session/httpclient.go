package session

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"chat-sync/internal/models"
)

// HTTPRestClient talks to the sync service's REST collaborators.
type HTTPRestClient struct {
	base   string
	userID string
	client *http.Client
}

// NewHTTPRestClient creates a client for the service at base, acting as
// userID.
func NewHTTPRestClient(base, userID string) *HTTPRestClient {
	return &HTTPRestClient{
		base:   base,
		userID: userID,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// ListConversations fetches the authoritative conversation list.
func (c *HTTPRestClient) ListConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	var out struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	if err := c.get(ctx, "/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// MessagePage fetches one page of history for a conversation.
func (c *HTTPRestClient) MessagePage(ctx context.Context, conversationID string, before time.Time, limit int) ([]models.Message, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if !before.IsZero() {
		query.Set("before", before.UTC().Format(time.RFC3339Nano))
	}
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	if err := c.get(ctx, "/conversations/"+url.PathEscape(conversationID)+"/messages", query, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// PostMessage creates a message and returns it with the server-assigned id.
func (c *HTTPRestClient) PostMessage(ctx context.Context, conversationID string, msg models.Message) (models.Message, error) {
	body, err := json.Marshal(map[string]string{
		"content": msg.Content,
		"type":    string(msg.Type),
	})
	if err != nil {
		return models.Message{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/conversations/"+url.PathEscape(conversationID)+"/messages", bytes.NewReader(body))
	if err != nil {
		return models.Message{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", c.userID)

	resp, err := c.client.Do(req)
	if err != nil {
		return models.Message{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return models.Message{}, fmt.Errorf("post message: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Message models.Message `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.Message{}, err
	}
	return out.Message, nil
}

func (c *HTTPRestClient) get(ctx context.Context, path string, query url.Values, out any) error {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-User-Id", c.userID)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
