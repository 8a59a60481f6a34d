package mcp

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
)

type handlers struct {
	bridge *Bridge
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

func statusResult(err error, okMessage string) (*mcp.CallToolResult, error) {
	result := map[string]any{
		"success": err == nil,
		"message": okMessage,
	}
	if err != nil {
		result["message"] = err.Error()
	}
	return jsonResult(result)
}

func stringArg(request mcp.CallToolRequest, name string) (string, error) {
	v, ok := request.Params.Arguments[name].(string)
	if !ok || v == "" {
		return "", errors.New(name + " must be a non-empty string")
	}
	return v, nil
}

func (h *handlers) listConversations(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := ConversationFilter{Limit: 20}

	if q, ok := request.Params.Arguments["query"].(string); ok {
		filter.Query = q
	}
	if u, ok := request.Params.Arguments["unread_only"].(bool); ok {
		filter.UnreadOnly = u
	}
	if l, ok := request.Params.Arguments["limit"].(float64); ok {
		filter.Limit = int(l)
	}
	if p, ok := request.Params.Arguments["page"].(float64); ok {
		if p < 0 {
			return nil, errors.New("page must not be negative")
		}
		filter.Page = int(p)
	}

	list, err := h.bridge.ListConversations(ctx, filter)
	if err != nil {
		return nil, err
	}
	return jsonResult(list)
}

func (h *handlers) getUnread(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	unread, err := h.bridge.HasUnread(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]bool{"has_unread": unread})
}

func (h *handlers) listMessages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chatID, err := stringArg(request, "chat_id")
	if err != nil {
		return nil, err
	}

	limit := 20
	if l, ok := request.Params.Arguments["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	messages, err := h.bridge.ListMessages(ctx, chatID, limit)
	if err != nil {
		return nil, err
	}
	return jsonResult(messages)
}

func (h *handlers) markSeen(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chatID, err := stringArg(request, "chat_id")
	if err != nil {
		return nil, err
	}
	return statusResult(h.bridge.MarkSeen(ctx, chatID), "Conversation marked as seen")
}

func (h *handlers) flagConversation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chatID, err := stringArg(request, "chat_id")
	if err != nil {
		return nil, err
	}

	flagged := true
	if f, ok := request.Params.Arguments["flagged"].(bool); ok {
		flagged = f
	}
	return statusResult(h.bridge.SetFlagged(ctx, chatID, flagged), "Conversation updated")
}

func (h *handlers) trackBeneficiaries(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, ok := request.Params.Arguments["jeune_ids"].([]any)
	if !ok || len(raw) == 0 {
		return nil, errors.New("jeune_ids must be a non-empty array")
	}

	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		id, ok := v.(string)
		if !ok {
			return nil, errors.New("jeune_ids must contain strings")
		}
		ids = append(ids, id)
	}
	return statusResult(h.bridge.Track(ctx, ids), "Tracking updated")
}

func (h *handlers) sendMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recipient, err := stringArg(request, "recipient")
	if err != nil {
		return nil, err
	}

	message, ok := request.Params.Arguments["message"].(string)
	if !ok {
		return nil, errors.New("message must be a string")
	}

	return statusResult(h.bridge.SendMessage(ctx, recipient, message), "Message sent successfully")
}
