package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mbenaiss/conseiller-chat/chat"
	"github.com/mbenaiss/conseiller-chat/encryption"
	"github.com/mbenaiss/conseiller-chat/models"
)

const (
	writeWait   = 10 * time.Second
	authTimeout = 15 * time.Second
)

// CredentialsFetcher provides the sign-in token and encryption key.
type CredentialsFetcher interface {
	FetchCredentials(ctx context.Context) (models.Credentials, error)
}

type subscriber struct {
	key      string
	onUpdate chat.UpdateFunc
}

// Client is a chat.Transport over one websocket to the real-time store.
// Credentials come from the backend API.
type Client struct {
	url    string
	api    CredentialsFetcher
	dialer *websocket.Dialer
	log    zerolog.Logger

	writeMu sync.Mutex

	mu   sync.Mutex
	conn *websocket.Conn
	subs map[string]subscriber
}

var (
	_ chat.Transport  = (*Client)(nil)
	_ chat.FlagWriter = (*Client)(nil)
)

// NewClient creates a real-time store client.
func NewClient(url string, api CredentialsFetcher, log zerolog.Logger) *Client {
	return &Client{
		url:    url,
		api:    api,
		dialer: websocket.DefaultDialer,
		log:    log.With().Str("component", "realtime").Logger(),
		subs:   make(map[string]subscriber),
	}
}

// FetchCredentials asks the backend API for chat credentials.
func (c *Client) FetchCredentials(ctx context.Context) (models.Credentials, error) {
	return c.api.FetchCredentials(ctx)
}

// SignIn opens the websocket and authenticates with token.
func (c *Client) SignIn(ctx context.Context, token string) error {
	if c.IsConnected() {
		return nil
	}

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to real-time store: %w", err)
	}

	if err := c.authenticate(conn, token); err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)

	c.log.Info().Str("url", c.url).Msg("signed in to real-time store")
	return nil
}

func (c *Client) authenticate(conn *websocket.Conn, token string) error {
	deadline := time.Now().Add(authTimeout)
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(frame{Type: frameAuth, Token: token}); err != nil {
		return fmt.Errorf("failed to send auth frame: %w", err)
	}

	_ = conn.SetReadDeadline(deadline)
	var resp frame
	if err := conn.ReadJSON(&resp); err != nil {
		return fmt.Errorf("failed to read auth response: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	switch resp.Type {
	case frameAuthOK:
		return nil
	case frameError:
		return fmt.Errorf("sign-in rejected: %s", resp.Error)
	default:
		return fmt.Errorf("unexpected auth response %q", resp.Type)
	}
}

// Subscribe registers onUpdate for the conversations of jeuneIDs.
func (c *Client) Subscribe(ctx context.Context, encryptionKey string, jeuneIDs []string, onUpdate chat.UpdateFunc) (func(), error) {
	if !c.IsConnected() {
		return nil, chat.ErrSessionExpired
	}

	id := uuid.NewString()
	c.mu.Lock()
	c.subs[id] = subscriber{key: encryptionKey, onUpdate: onUpdate}
	c.mu.Unlock()

	if err := c.write(frame{Type: frameSubscribe, Subscription: id, JeuneIDs: jeuneIDs}); err != nil {
		c.unregister(id)
		return nil, err
	}

	c.log.Debug().Str("subscription", id).Int("jeunes", len(jeuneIDs)).Msg("subscription opened")

	return func() {
		if !c.unregister(id) {
			return
		}
		if err := c.write(frame{Type: frameUnsubscribe, Subscription: id}); err != nil {
			c.log.Debug().Err(err).Str("subscription", id).Msg("failed to send unsubscribe")
		}
	}, nil
}

// SetSeen marks a conversation as seen in the store.
func (c *Client) SetSeen(ctx context.Context, chatID string) error {
	seen := true
	return c.write(frame{Type: frameUpdate, ChatID: chatID, Seen: &seen})
}

// SetFlagged updates the conseiller flag in the store.
func (c *Client) SetFlagged(ctx context.Context, chatID string, flagged bool) error {
	return c.write(frame{Type: frameUpdate, ChatID: chatID, Flagged: &flagged})
}

// IsConnected reports whether the websocket is open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close drops every subscription and closes the websocket.
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.subs = make(map[string]subscriber)
	c.mu.Unlock()

	if conn == nil {
		return
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "sign out"), time.Now().Add(writeWait))
	c.writeMu.Unlock()
	conn.Close()
}

func (c *Client) unregister(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[id]; !ok {
		return false
	}
	delete(c.subs, id)
	return true
}

func (c *Client) write(f frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return chat.ErrSessionExpired
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := conn.WriteJSON(f); err != nil {
		return fmt.Errorf("failed to write %s frame: %w", f.Type, err)
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.drop(conn, err)
			return
		}

		var f inbound
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn().Err(err).Msg("skipping malformed frame")
			continue
		}

		switch f.Type {
		case frameSnapshot:
			c.dispatch(f)
		case frameError:
			c.log.Warn().Str("subscription", f.Subscription).Str("error", f.Error).Msg("real-time store error")
		default:
			c.log.Debug().Str("type", f.Type).Msg("ignoring frame")
		}
	}
}

// drop forgets conn and its subscriptions once it fails. The store does not
// resume subscriptions on a new connection.
func (c *Client) drop(conn *websocket.Conn, err error) {
	c.mu.Lock()
	current := c.conn == conn
	dropped := 0
	if current {
		c.conn = nil
		dropped = len(c.subs)
		c.subs = make(map[string]subscriber)
	}
	c.mu.Unlock()

	if current && !errors.Is(err, websocket.ErrCloseSent) {
		c.log.Warn().Err(err).Int("subscriptions", dropped).Msg("real-time connection lost")
	}
	conn.Close()
}

func (c *Client) dispatch(f inbound) {
	c.mu.Lock()
	s, ok := c.subs[f.Subscription]
	c.mu.Unlock()
	if !ok {
		c.log.Debug().Str("subscription", f.Subscription).Msg("snapshot for unknown subscription dropped")
		return
	}

	conversations := make([]models.Conversation, 0, len(f.Chats))
	for _, raw := range f.Chats {
		var rc remoteChat
		if err := json.Unmarshal(raw, &rc); err != nil {
			c.log.Warn().Err(err).Str("subscription", f.Subscription).Msg("skipping malformed chat")
			continue
		}
		conversations = append(conversations, rc.toConversation(c.decrypt(rc, s.key)))
	}

	s.onUpdate(conversations)
}

func (c *Client) decrypt(rc remoteChat, key string) string {
	if rc.LastMessageContent == "" || rc.LastMessageIV == "" {
		return rc.LastMessageContent
	}

	plain, err := encryption.Decrypt(rc.LastMessageContent, rc.LastMessageIV, key)
	if err != nil {
		c.log.Warn().Err(err).Str("chat_id", rc.ChatID).Msg("failed to decrypt last message")
		return rc.LastMessageContent
	}
	return plain
}
