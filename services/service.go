package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"

	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"

	"github.com/mbenaiss/conseiller-chat/chat"
	"github.com/mbenaiss/conseiller-chat/models"
)

// ErrUnsupported is returned for operations the configured transport cannot do
var ErrUnsupported = errors.New("operation not supported by this transport")

// Service is the bridge facade used by the HTTP API
type Service interface {
	GetStatus() (models.Status, error)
	Start(ctx context.Context) error
	Login(ctx context.Context) error
	Track(ctx context.Context, jeuneIDs []string) error
	GetConversations(ctx context.Context) (models.ConversationList, error)
	HasUnread() bool
	MarkSeen(ctx context.Context, chatID string) error
	SetFlagged(ctx context.Context, chatID string, flagged bool) error
	GetMessages(ctx context.Context, chatID string, limit int) ([]models.Message, error)
	SendMessage(ctx context.Context, recipient string, message string) error
	GetQR(ctx context.Context) ([]byte, error)
	SetSoundNotifications(ctx context.Context, enabled bool) error
	SignOut()
}

// Profile is the conseiller side of the backend API
type Profile interface {
	GetConseiller(ctx context.Context, conseillerID string) (models.Conseiller, error)
	SetNotificationsSonores(ctx context.Context, conseillerID string, enabled bool) error
	GetJeunes(ctx context.Context, conseillerID string) ([]models.Jeune, error)
}

// MessageStore serves the local message history
type MessageStore interface {
	GetMessages(ctx context.Context, chatID string, limit int) ([]models.Message, error)
}

// pairing is implemented by transports that pair a device with a QR code
type pairing interface {
	GetQR(ctx context.Context) (string, error)
	IsLoggedIn() bool
	Connect() error
}

type sender interface {
	SendMessage(ctx context.Context, recipient string, message string) error
}

type connectivity interface {
	IsConnected() bool
}

type closer interface {
	Close()
}

// Options configures a Service
type Options struct {
	TransportName string
	ConseillerID  string
	// TrackedJeunes is used when no Profile is configured
	TrackedJeunes []string
}

type service struct {
	manager   *chat.Manager
	transport chat.Transport
	messages  MessageStore
	profile   Profile
	prefs     *Preferences
	opts      Options
	log       zerolog.Logger
}

// NewService creates a new Service. profile may be nil.
func NewService(manager *chat.Manager, transport chat.Transport, messages MessageStore, profile Profile, prefs *Preferences, opts Options, log zerolog.Logger) Service {
	return &service{
		manager:   manager,
		transport: transport,
		messages:  messages,
		profile:   profile,
		prefs:     prefs,
		opts:      opts,
		log:       log.With().Str("component", "service").Logger(),
	}
}

// Start loads the conseiller profile and portfolio and starts tracking it
func (s *service) Start(ctx context.Context) error {
	jeuneIDs := s.opts.TrackedJeunes

	if s.profile != nil && s.opts.ConseillerID != "" {
		conseiller, err := s.profile.GetConseiller(ctx, s.opts.ConseillerID)
		if err != nil {
			return fmt.Errorf("failed to load conseiller profile: %w", err)
		}
		s.prefs.SetSoundNotifications(conseiller.NotificationsSonores)

		jeunes, err := s.profile.GetJeunes(ctx, s.opts.ConseillerID)
		if err != nil {
			return fmt.Errorf("failed to load portfolio: %w", err)
		}
		jeuneIDs = make([]string, 0, len(jeunes))
		for _, j := range jeunes {
			jeuneIDs = append(jeuneIDs, j.ID)
		}

		s.log.Info().
			Str("conseiller", conseiller.ID).
			Int("jeunes", len(jeuneIDs)).
			Bool("sound", conseiller.NotificationsSonores).
			Msg("profile loaded")
	}

	if len(jeuneIDs) == 0 {
		s.log.Info().Msg("no beneficiary to track")
		return nil
	}

	return s.manager.Track(ctx, jeuneIDs)
}

// Login connects a paired transport, then starts tracking
func (s *service) Login(ctx context.Context) error {
	if p, ok := s.transport.(pairing); ok && !s.isConnected() {
		if err := p.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
	}
	return s.Start(ctx)
}

// Track replaces the tracked portfolio
func (s *service) Track(ctx context.Context, jeuneIDs []string) error {
	return s.manager.Track(ctx, jeuneIDs)
}

// GetStatus returns the current status of the bridge
func (s *service) GetStatus() (models.Status, error) {
	conversations, _ := s.manager.Conversations()
	connected := s.isConnected()
	loggedIn := connected
	if p, ok := s.transport.(pairing); ok {
		loggedIn = p.IsLoggedIn()
	}

	return models.Status{
		Transport:     s.opts.TransportName,
		Connected:     connected,
		LoggedIn:      loggedIn,
		Tracked:       len(s.manager.Tracked()),
		Conversations: len(conversations),
		HasUnread:     s.manager.HasUnread(),
	}, nil
}

// GetConversations returns the reconciled list, or an empty state telling
// the user what to do next
func (s *service) GetConversations(ctx context.Context) (models.ConversationList, error) {
	conversations, loaded := s.manager.Conversations()
	list := models.ConversationList{
		Conversations: conversations,
		Loaded:        loaded,
		HasUnread:     s.manager.HasUnread(),
	}

	if len(conversations) > 0 {
		return list, nil
	}

	switch p, ok := s.transport.(pairing); {
	case ok && !p.IsLoggedIn():
		es := models.NewLinkEmptyState("Aucun appareil WhatsApp n'est associé.", "Scanner le QR code", "/api/qr")
		list.EmptyState = &es
	case len(s.manager.Tracked()) == 0:
		es := models.NewButtonEmptyState("Vous ne suivez encore aucun bénéficiaire.", "Charger mon portefeuille", "GET", "/api/login")
		list.EmptyState = &es
	}

	return list, nil
}

// HasUnread reports whether any tracked conversation is unread
func (s *service) HasUnread() bool {
	return s.manager.HasUnread()
}

// MarkSeen marks a conversation as seen
func (s *service) MarkSeen(ctx context.Context, chatID string) error {
	return s.manager.MarkSeen(ctx, chatID)
}

// SetFlagged flags or unflags a conversation
func (s *service) SetFlagged(ctx context.Context, chatID string, flagged bool) error {
	return s.manager.SetFlagged(ctx, chatID, flagged)
}

// GetMessages retrieves messages from a specific chat with the given limit
func (s *service) GetMessages(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
	if s.messages == nil {
		return nil, ErrUnsupported
	}
	return s.messages.GetMessages(ctx, chatID, limit)
}

// SendMessage sends a message to the specified recipient
func (s *service) SendMessage(ctx context.Context, recipient string, message string) error {
	snd, ok := s.transport.(sender)
	if !ok {
		return ErrUnsupported
	}
	return snd.SendMessage(ctx, recipient, message)
}

// GetQR returns the pairing QR code as a PNG, or nil when already paired
func (s *service) GetQR(ctx context.Context) ([]byte, error) {
	p, ok := s.transport.(pairing)
	if !ok {
		return nil, ErrUnsupported
	}

	if s.isConnected() && p.IsLoggedIn() {
		s.log.Info().Msg("already connected")
		return nil, nil
	}

	qr, err := p.GetQR(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get QR code: %w", err)
	}
	if qr == "" {
		return nil, nil
	}

	qrCode, err := qrcode.New(qr, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code image: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qrCode.Image(256)); err != nil {
		return nil, fmt.Errorf("failed to encode QR code image: %w", err)
	}

	return buf.Bytes(), nil
}

// SetSoundNotifications updates the preference locally and on the profile
func (s *service) SetSoundNotifications(ctx context.Context, enabled bool) error {
	if s.profile != nil && s.opts.ConseillerID != "" {
		if err := s.profile.SetNotificationsSonores(ctx, s.opts.ConseillerID, enabled); err != nil {
			return fmt.Errorf("failed to save preference: %w", err)
		}
	}
	s.prefs.SetSoundNotifications(enabled)
	return nil
}

// SignOut closes the chat session and the transport connection
func (s *service) SignOut() {
	s.manager.SignOut()
	if c, ok := s.transport.(closer); ok {
		c.Close()
	}
}

func (s *service) isConnected() bool {
	if c, ok := s.transport.(connectivity); ok {
		return c.IsConnected()
	}
	return false
}
