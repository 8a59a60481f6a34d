package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mbenaiss/conseiller-chat/models"
)

const requestTimeout = 30 * time.Second

// Bridge calls the bridge HTTP API
type Bridge struct {
	http *resty.Client
}

// NewBridge creates a client for the bridge API at baseURL
func NewBridge(baseURL string) *Bridge {
	return &Bridge{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(requestTimeout).
			SetHeader("Accept", "application/json"),
	}
}

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// ConversationFilter narrows list_conversations results
type ConversationFilter struct {
	Query      string
	UnreadOnly bool
	Limit      int
	Page       int
}

// ListConversations returns the reconciled conversations matching filter
func (b *Bridge) ListConversations(ctx context.Context, filter ConversationFilter) (models.ConversationList, error) {
	var list models.ConversationList
	if err := b.do(ctx, http.MethodGet, "/chats", nil, &list); err != nil {
		return models.ConversationList{}, err
	}

	query := strings.ToLower(filter.Query)
	matched := make([]models.Conversation, 0, len(list.Conversations))
	for _, c := range list.Conversations {
		if filter.UnreadOnly && (c.SeenByConseiller || c.LastMessageContent == "") {
			continue
		}
		if query != "" && !matchesConversation(c, query) {
			continue
		}
		matched = append(matched, c)
	}
	list.Conversations = paginate(matched, filter.Limit, filter.Page)

	return list, nil
}

func matchesConversation(c models.Conversation, query string) bool {
	for _, field := range []string{c.FirstName, c.LastName, c.JeuneID, c.ChatID, c.LastMessageContent} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

func paginate(conversations []models.Conversation, limit, page int) []models.Conversation {
	if limit <= 0 {
		return conversations
	}
	page = max(page, 0)
	start := page * limit
	if start >= len(conversations) {
		return []models.Conversation{}
	}
	end := min(start+limit, len(conversations))
	return conversations[start:end]
}

// HasUnread reports whether any tracked conversation is unread
func (b *Bridge) HasUnread(ctx context.Context) (bool, error) {
	var out struct {
		HasUnread bool `json:"has_unread"`
	}
	if err := b.do(ctx, http.MethodGet, "/unread", nil, &out); err != nil {
		return false, err
	}
	return out.HasUnread, nil
}

// ListMessages returns the stored history of a conversation
func (b *Bridge) ListMessages(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
	path := fmt.Sprintf("/chats/%s/messages?limit=%s", url.PathEscape(chatID), strconv.Itoa(limit))
	var messages []models.Message
	if err := b.do(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkSeen marks a conversation as seen
func (b *Bridge) MarkSeen(ctx context.Context, chatID string) error {
	return b.do(ctx, http.MethodPost, "/chats/"+url.PathEscape(chatID)+"/seen", nil, nil)
}

// SetFlagged flags or unflags a conversation
func (b *Bridge) SetFlagged(ctx context.Context, chatID string, flagged bool) error {
	return b.do(ctx, http.MethodPost, "/chats/"+url.PathEscape(chatID)+"/flag", map[string]bool{"flagged": flagged}, nil)
}

// Track replaces the tracked portfolio
func (b *Bridge) Track(ctx context.Context, jeuneIDs []string) error {
	return b.do(ctx, http.MethodPost, "/track", map[string][]string{"jeune_ids": jeuneIDs}, nil)
}

// SendMessage sends a message to the specified recipient
func (b *Bridge) SendMessage(ctx context.Context, recipient, message string) error {
	if recipient == "" {
		return fmt.Errorf("recipient must be provided")
	}
	return b.do(ctx, http.MethodPost, "/send", map[string]string{"recipient": recipient, "message": message}, nil)
}

func (b *Bridge) do(ctx context.Context, method, path string, body any, out any) error {
	req := b.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("request error: %w", err)
	}

	var result response
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return fmt.Errorf("error: HTTP %d - %s", resp.StatusCode(), resp.String())
	}
	if resp.StatusCode() != http.StatusOK || !result.Success {
		return fmt.Errorf("bridge error: HTTP %d - %s", resp.StatusCode(), result.Message)
	}

	if out != nil && len(result.Data) > 0 {
		if err := json.Unmarshal(result.Data, out); err != nil {
			return fmt.Errorf("response decoding error: %w", err)
		}
	}
	return nil
}
