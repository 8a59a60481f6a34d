package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a new MCP server backed by the bridge API
func NewMCPServer(name string, version string, bridge *Bridge) *server.MCPServer {
	s := server.NewMCPServer(
		name,
		version,
	)
	h := &handlers{bridge: bridge}

	listConversationsTool := mcp.NewTool("list_conversations",
		mcp.WithDescription("List the conversations with tracked beneficiaries, flagged first then most recent"),
		mcp.WithString("query",
			mcp.Description("Optional search term matched against names, ids and last message"),
		),
		mcp.WithBoolean("unread_only",
			mcp.Description("Only return conversations with an unseen message (default false)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of conversations to return (default 20)"),
		),
		mcp.WithNumber("page",
			mcp.Description("Page number for pagination (default 0)"),
		),
	)

	getUnreadTool := mcp.NewTool("get_unread",
		mcp.WithDescription("Tell whether any tracked conversation has an unseen message"),
	)

	listMessagesTool := mcp.NewTool("list_messages",
		mcp.WithDescription("Retrieve the stored messages of a conversation"),
		mcp.WithString("chat_id",
			mcp.Required(),
			mcp.Description("Identifier of the conversation"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of messages to return (default 20)"),
		),
	)

	markSeenTool := mcp.NewTool("mark_seen",
		mcp.WithDescription("Mark a conversation as seen by the conseiller"),
		mcp.WithString("chat_id",
			mcp.Required(),
			mcp.Description("Identifier of the conversation"),
		),
	)

	flagConversationTool := mcp.NewTool("flag_conversation",
		mcp.WithDescription("Flag or unflag a conversation"),
		mcp.WithString("chat_id",
			mcp.Required(),
			mcp.Description("Identifier of the conversation"),
		),
		mcp.WithBoolean("flagged",
			mcp.Description("New flag value (default true)"),
		),
	)

	trackBeneficiariesTool := mcp.NewTool("track_beneficiaries",
		mcp.WithDescription("Replace the set of beneficiaries whose conversations are followed"),
		mcp.WithArray("jeune_ids",
			mcp.Required(),
			mcp.Description("Identifiers of the beneficiaries to follow"),
		),
	)

	sendMessageTool := mcp.NewTool("send_message",
		mcp.WithDescription("Send a message to a beneficiary (WhatsApp transport only)"),
		mcp.WithString("recipient",
			mcp.Required(),
			mcp.Description("The beneficiary phone number with country code, or a JID like '33612345678@s.whatsapp.net'"),
		),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The text of the message to send"),
		),
	)

	s.AddTool(listConversationsTool, h.listConversations)
	s.AddTool(getUnreadTool, h.getUnread)
	s.AddTool(listMessagesTool, h.listMessages)
	s.AddTool(markSeenTool, h.markSeen)
	s.AddTool(flagConversationTool, h.flagConversation)
	s.AddTool(trackBeneficiariesTool, h.trackBeneficiaries)
	s.AddTool(sendMessageTool, h.sendMessage)

	return s
}

// StartMCPServer starts the MCP server
func StartMCPServer(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
