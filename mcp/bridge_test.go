package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbenaiss/conseiller-chat/models"
)

type fakeBridgeAPI struct {
	tracked []string
	flagged map[string]bool
}

func (f *fakeBridgeAPI) routes() http.Handler {
	mux := http.NewServeMux()
	reply := func(w http.ResponseWriter, status int, body map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}

	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	mux.HandleFunc("GET /chats", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, map[string]any{"success": true, "data": models.ConversationList{
			Loaded:    true,
			HasUnread: true,
			Conversations: []models.Conversation{
				{ChatID: "c1", FirstName: "Kenji", LastMessageContent: "bonjour", LastMessageSentAt: now},
				{ChatID: "c2", FirstName: "Nils", LastMessageContent: "merci", SeenByConseiller: true},
				{ChatID: "c3", FirstName: "Kenza", LastMessageContent: "ok", LastMessageSentAt: now.Add(-time.Hour)},
			},
		}})
	})
	mux.HandleFunc("GET /unread", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, map[string]any{"success": true, "data": map[string]bool{"has_unread": true}})
	})
	mux.HandleFunc("POST /chats/{id}/flag", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Flagged bool `json:"flagged"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if f.flagged == nil {
			f.flagged = map[string]bool{}
		}
		f.flagged[r.PathValue("id")] = req.Flagged
		reply(w, http.StatusOK, map[string]any{"success": true})
	})
	mux.HandleFunc("POST /chats/{id}/seen", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusNotFound, map[string]any{"success": false, "message": "unknown conversation"})
	})
	mux.HandleFunc("POST /track", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			JeuneIDs []string `json:"jeune_ids"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.tracked = req.JeuneIDs
		reply(w, http.StatusOK, map[string]any{"success": true})
	})
	return mux
}

func newTestBridge(t *testing.T) (*Bridge, *fakeBridgeAPI) {
	t.Helper()
	api := &fakeBridgeAPI{}
	srv := httptest.NewServer(api.routes())
	t.Cleanup(srv.Close)
	return NewBridge(srv.URL + "/"), api
}

func TestListConversationsFilters(t *testing.T) {
	bridge, _ := newTestBridge(t)
	ctx := context.Background()

	list, err := bridge.ListConversations(ctx, ConversationFilter{Query: "ken"})
	require.NoError(t, err)
	require.Len(t, list.Conversations, 2)
	assert.Equal(t, "c1", list.Conversations[0].ChatID)

	list, err = bridge.ListConversations(ctx, ConversationFilter{UnreadOnly: true, Limit: 1, Page: 1})
	require.NoError(t, err)
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, "c3", list.Conversations[0].ChatID)

	list, err = bridge.ListConversations(ctx, ConversationFilter{Limit: 5, Page: 3})
	require.NoError(t, err)
	assert.Empty(t, list.Conversations)
}

func TestBridgeErrorsCarryMessage(t *testing.T) {
	bridge, _ := newTestBridge(t)

	err := bridge.MarkSeen(context.Background(), "nope")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
	assert.Contains(t, err.Error(), "unknown conversation")
}

func TestToolHandlers(t *testing.T) {
	bridge, api := newTestBridge(t)
	h := &handlers{bridge: bridge}
	ctx := context.Background()

	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]interface{}{"jeune_ids": []interface{}{"j1", "j2"}}
	res, err := h.trackBeneficiaries(ctx, req)
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), `"success":true`)
	assert.Equal(t, []string{"j1", "j2"}, api.tracked)

	req.Params.Arguments = map[string]interface{}{"chat_id": "c2", "flagged": false}
	_, err = h.flagConversation(ctx, req)
	require.NoError(t, err)
	assert.False(t, api.flagged["c2"])

	req.Params.Arguments = map[string]interface{}{}
	_, err = h.markSeen(ctx, req)
	assert.Error(t, err)

	res, err = h.getUnread(ctx, req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"has_unread":true}`, resultText(t, res))
}

func TestPaginate(t *testing.T) {
	conversations := []models.Conversation{{ChatID: "a"}, {ChatID: "b"}, {ChatID: "c"}}

	tests := []struct {
		name  string
		limit int
		page  int
		want  []string
	}{
		{name: "no limit", limit: 0, page: 3, want: []string{"a", "b", "c"}},
		{name: "first page", limit: 2, page: 0, want: []string{"a", "b"}},
		{name: "last partial page", limit: 2, page: 1, want: []string{"c"}},
		{name: "past the end", limit: 2, page: 5, want: []string{}},
		{name: "negative page is the first page", limit: 2, page: -1, want: []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := []string{}
			for _, c := range paginate(conversations, tt.limit, tt.page) {
				got = append(got, c.ChatID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListConversationsRejectsNegativePage(t *testing.T) {
	bridge, _ := newTestBridge(t)
	h := &handlers{bridge: bridge}

	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]interface{}{"page": float64(-1)}
	_, err := h.listConversations(context.Background(), req)

	assert.EqualError(t, err, "page must not be negative")
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	}
	t.Fatalf("unexpected content %T", res.Content[0])
	return ""
}
