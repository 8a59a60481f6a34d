package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mbenaiss/conseiller-chat/notify"
	"github.com/mbenaiss/conseiller-chat/services"
)

// Server represents the API handler
type Server struct {
	service services.Service
	hub     *notify.Hub
	router  *gin.Engine
	server  *http.Server
	log     zerolog.Logger
}

// NewServer creates a new API server
func NewServer(service services.Service, hub *notify.Hub, port string, log zerolog.Logger) *Server {
	router := gin.Default()

	s := &Server{
		service: service,
		hub:     hub,
		router:  router,
		server: &http.Server{
			Addr:    ":" + port,
			Handler: router,
		},
		log: log.With().Str("component", "api").Logger(),
	}
	s.registerRoutes(router)

	return s
}

// SendMessageRequest represents the request body for sending messages
type SendMessageRequest struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

// TrackRequest replaces the tracked portfolio
type TrackRequest struct {
	JeuneIDs []string `json:"jeune_ids"`
}

// FlagRequest sets the conseiller flag of a conversation
type FlagRequest struct {
	Flagged bool `json:"flagged"`
}

// SoundRequest sets the sound notification preference
type SoundRequest struct {
	Enabled bool `json:"enabled"`
}

// Response represents a generic API response
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/login", s.handleLogin)
		api.GET("/qr", s.handleQR)
		api.POST("/logout", s.handleLogout)

		api.POST("/track", s.handleTrack)
		api.GET("/chats", s.handleGetChats)
		api.GET("/unread", s.handleUnread)
		api.GET("/chats/:id/messages", s.handleGetMessages)
		api.POST("/chats/:id/seen", s.handleMarkSeen)
		api.POST("/chats/:id/flag", s.handleFlag)
		api.PUT("/preferences/sound", s.handleSound)
		api.POST("/send", s.handleSendMessage)

		api.GET("/events", s.handleEvents)
	}
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.hub.Close()
	return s.server.Shutdown(ctx)
}
