package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mbenaiss/conseiller-chat/chat"
	"github.com/mbenaiss/conseiller-chat/notify"
	"github.com/mbenaiss/conseiller-chat/services"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (s *Server) fail(c *gin.Context, action string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, chat.ErrNoSession):
		status = http.StatusConflict
	case errors.Is(err, chat.ErrUnknownConversation):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrUnsupported):
		status = http.StatusNotImplemented
	}

	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Str("action", action).Msg("request failed")
	}

	c.JSON(status, Response{
		Success: false,
		Message: fmt.Sprintf("Failed to %s: %v", action, err),
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Message: message,
	})
}

func (s *Server) handleQR(c *gin.Context) {
	qrCode, err := s.service.GetQR(c.Request.Context())
	if err != nil {
		s.fail(c, "get QR code", err)
		return
	}

	if qrCode == nil {
		c.JSON(http.StatusOK, Response{
			Success: true,
			Message: "Already connected",
		})
		return
	}

	c.Data(http.StatusOK, "image/png", qrCode)
}

func (s *Server) handleStatus(c *gin.Context) {
	status, err := s.service.GetStatus()
	if err != nil {
		s.fail(c, "get status", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    status,
	})
}

func (s *Server) handleLogin(c *gin.Context) {
	if err := s.service.Login(c.Request.Context()); err != nil {
		s.fail(c, "login", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "Login successful",
	})
}

func (s *Server) handleLogout(c *gin.Context) {
	s.service.SignOut()

	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "Signed out",
	})
}

func (s *Server) handleTrack(c *gin.Context) {
	var req TrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if len(req.JeuneIDs) == 0 {
		badRequest(c, "jeune_ids is required")
		return
	}

	if err := s.service.Track(c.Request.Context(), req.JeuneIDs); err != nil {
		s.fail(c, "track conversations", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: fmt.Sprintf("Tracking %d beneficiaries", len(req.JeuneIDs)),
	})
}

func (s *Server) handleGetChats(c *gin.Context) {
	list, err := s.service.GetConversations(c.Request.Context())
	if err != nil {
		s.fail(c, "get chats", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    list,
	})
}

func (s *Server) handleUnread(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    gin.H{"has_unread": s.service.HasUnread()},
	})
}

func (s *Server) handleGetMessages(c *gin.Context) {
	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	messages, err := s.service.GetMessages(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		s.fail(c, "get messages", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    messages,
	})
}

func (s *Server) handleMarkSeen(c *gin.Context) {
	if err := s.service.MarkSeen(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, "mark conversation as seen", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "Conversation marked as seen",
	})
}

func (s *Server) handleFlag(c *gin.Context) {
	var req FlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	if err := s.service.SetFlagged(c.Request.Context(), c.Param("id"), req.Flagged); err != nil {
		s.fail(c, "flag conversation", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "Conversation updated",
	})
}

func (s *Server) handleSound(c *gin.Context) {
	var req SoundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	if err := s.service.SetSoundNotifications(c.Request.Context(), req.Enabled); err != nil {
		s.fail(c, "update sound notifications", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "Preference saved",
	})
}

func (s *Server) handleSendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	if req.Recipient == "" || req.Message == "" {
		badRequest(c, "Recipient and message are required")
		return
	}

	if err := s.service.SendMessage(c.Request.Context(), req.Recipient, req.Message); err != nil {
		s.fail(c, "send message", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "Message sent successfully",
	})
}

// handleEvents streams notifications to a UI over a websocket
func (s *Server) handleEvents(c *gin.Context) {
	ws, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	conn := notify.NewConnection(ws)
	s.hub.Attach(conn)
	defer func() {
		s.hub.Detach(conn)
		conn.Close(websocket.CloseNormalClosure, "session closed")
	}()

	start := time.Now()
	conn.ReadUntilClosed()
	s.log.Debug().Str("connection", conn.ID).Dur("duration", time.Since(start)).Msg("listener left")
}
