package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mdp/qrterminal"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/mbenaiss/conseiller-chat/chat"
	"github.com/mbenaiss/conseiller-chat/db"
	"github.com/mbenaiss/conseiller-chat/models"
)

// ErrNotPaired is returned until a device has been paired by scanning the QR code
var ErrNotPaired = errors.New("whatsapp device is not paired")

const handlerTimeout = 10 * time.Second

// Whatsapp is a chat.Transport where jeunes are reached over WhatsApp.
// Conversations and their seen/flagged state live in the local store.
type Whatsapp struct {
	client *whatsmeow.Client
	store  db.DB
	subs   *registry
	log    zerolog.Logger
}

var (
	_ chat.Transport  = (*Whatsapp)(nil)
	_ chat.FlagWriter = (*Whatsapp)(nil)
)

// NewWhatsapp creates a new Whatsapp client
func NewWhatsapp(storeDir string, store db.DB, log zerolog.Logger) (*Whatsapp, error) {
	container, err := sqlstore.New("sqlite3", fmt.Sprintf("file:%s/whatsapp.db?_foreign_keys=on", storeDir), waLog.Stdout("Database", "INFO", true))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WhatsApp database: %w", err)
	}
	deviceStore, err := container.GetFirstDevice()
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	log = log.With().Str("component", "whatsapp").Logger()
	w := &Whatsapp{
		client: whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "INFO", true)),
		store:  store,
		subs:   newRegistry(store, log),
		log:    log,
	}

	w.client.AddEventHandler(w.handleEvent)

	return w, nil
}

func (w *Whatsapp) handleEvent(evt any) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	switch v := evt.(type) {
	case *events.Message:
		msg, err := w.handleMessage(v)
		if err != nil {
			w.log.Debug().Err(err).Str("chat", v.Info.Chat.String()).Msg("skipping message")
			return
		}
		jeuneID := v.Info.Chat.User
		if err := w.record(ctx, v.Info.Chat.String(), jeuneID, v.Info.PushName, msg); err != nil {
			w.log.Error().Err(err).Msg("failed to store message")
			return
		}
		w.subs.pushFor(ctx, jeuneID)
	case *events.HistorySync:
		if err := w.handleHistorySync(ctx, v); err != nil {
			w.log.Error().Err(err).Msg("failed to handle history sync")
			return
		}
		w.subs.pushFor(ctx, "")
	case *events.Connected:
		w.log.Info().Msg("connected to WhatsApp")
	case *events.LoggedOut:
		w.log.Warn().Msg("device logged out, please scan QR code to log in again")
	}
}

// FetchCredentials returns the paired device identity as sign-in token.
// WhatsApp content is end-to-end encrypted by the protocol so there is no
// separate content key.
func (w *Whatsapp) FetchCredentials(ctx context.Context) (models.Credentials, error) {
	if w.client.Store.ID == nil {
		return models.Credentials{}, ErrNotPaired
	}
	return models.Credentials{Token: w.client.Store.ID.String()}, nil
}

// SignIn connects the paired device
func (w *Whatsapp) SignIn(ctx context.Context, token string) error {
	if w.client.Store.ID == nil || w.client.Store.ID.String() != token {
		return ErrNotPaired
	}
	if w.client.IsConnected() {
		return nil
	}
	return w.client.Connect()
}

// Subscribe pushes the stored conversations of jeuneIDs now and after every
// relevant event until the teardown is called
func (w *Whatsapp) Subscribe(ctx context.Context, encryptionKey string, jeuneIDs []string, onUpdate chat.UpdateFunc) (func(), error) {
	keys := make([]string, 0, len(jeuneIDs))
	for _, id := range jeuneIDs {
		key, err := JeuneKey(id)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	s, teardown := w.subs.add(keys, onUpdate)
	if err := w.subs.push(ctx, s); err != nil {
		teardown()
		return nil, err
	}

	return teardown, nil
}

// SetSeen marks a conversation as seen and pushes the new state
func (w *Whatsapp) SetSeen(ctx context.Context, chatID string) error {
	if err := w.store.SetSeen(ctx, chatID); err != nil {
		return err
	}
	return w.pushChat(ctx, chatID)
}

// SetFlagged sets the conseiller flag and pushes the new state
func (w *Whatsapp) SetFlagged(ctx context.Context, chatID string, flagged bool) error {
	if err := w.store.SetFlagged(ctx, chatID, flagged); err != nil {
		return err
	}
	return w.pushChat(ctx, chatID)
}

func (w *Whatsapp) pushChat(ctx context.Context, chatID string) error {
	c, err := w.store.GetConversation(ctx, chatID)
	if err != nil {
		return err
	}
	w.subs.pushFor(ctx, c.JeuneID)
	return nil
}

// Connect connects the client
func (w *Whatsapp) Connect() error {
	return w.client.Connect()
}

// IsLoggedIn returns true if the client is logged in
func (w *Whatsapp) IsLoggedIn() bool {
	return w.client.IsLoggedIn()
}

// IsConnected returns true if the client is connected
func (w *Whatsapp) IsConnected() bool {
	return w.client.IsConnected()
}

// Close disconnects the client. The device stays paired.
func (w *Whatsapp) Close() {
	w.client.Disconnect()
}

// GetQR returns the QR code for the client
func (w *Whatsapp) GetQR(ctx context.Context) (string, error) {
	if w.client.Store.ID != nil {
		err := w.client.Connect()
		if err != nil {
			return "", fmt.Errorf("failed to connect: %v", err)
		}
		return "", nil
	}

	qrChan, err := w.client.GetQRChannel(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get QR channel: %v", err)
	}

	err = w.client.Connect()
	if err != nil {
		return "", fmt.Errorf("failed to connect to WhatsApp: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(3 * time.Minute):
			return "", fmt.Errorf("timeout waiting for QR code")
		case evt, ok := <-qrChan:
			if !ok {
				return "", fmt.Errorf("QR channel closed")
			}
			switch evt.Event {
			case "code":
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
				return evt.Code, nil
			case "success":
				w.log.Info().Msg("successfully paired")
				return "", nil
			default:
				return "", fmt.Errorf("unexpected QR event: %v", evt.Event)
			}
		}
	}
}

// SendMessage sends a message to a jeune and records it as the last message
func (w *Whatsapp) SendMessage(ctx context.Context, recipient string, message string) error {
	recipientJID, err := JIDFor(recipient)
	if err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}

	msg := &waProto.Message{
		Conversation: proto.String(message),
	}

	resp, err := w.client.SendMessage(ctx, recipientJID, msg)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	sent := models.Message{
		ID:           resp.ID,
		ChatID:       recipientJID.String(),
		Content:      message,
		CreationDate: resp.Timestamp,
		SentBy:       models.SenderConseiller,
		Type:         "MESSAGE",
	}
	if err := w.record(ctx, sent.ChatID, recipientJID.User, "", sent); err != nil {
		return fmt.Errorf("message sent but not stored: %w", err)
	}
	w.subs.pushFor(ctx, recipientJID.User)

	return nil
}

func (w *Whatsapp) record(ctx context.Context, chatID, jeuneID, pushName string, msg models.Message) error {
	prev, err := w.store.GetConversation(ctx, chatID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("error loading conversation: %w", err)
	}

	conversation := applyMessage(prev, chatID, jeuneID, pushName, msg)
	if err := w.store.StoreConversation(ctx, conversation); err != nil {
		return fmt.Errorf("error storing conversation: %w", err)
	}
	if err := w.store.StoreMessage(ctx, msg); err != nil {
		return fmt.Errorf("error storing message: %w", err)
	}

	return nil
}

func (w *Whatsapp) handleMessage(msg *events.Message) (models.Message, error) {
	if msg.Info.IsGroup {
		return models.Message{}, fmt.Errorf("group messages are not tracked")
	}

	content := msg.Message.GetConversation()
	if content == "" {
		content = msg.Message.GetExtendedTextMessage().GetText()
	}
	if content == "" {
		return models.Message{}, fmt.Errorf("message content is empty")
	}

	return models.Message{
		ID:           msg.Info.ID,
		ChatID:       msg.Info.Chat.String(),
		Content:      content,
		CreationDate: msg.Info.Timestamp,
		SentBy:       senderOf(msg.Info.IsFromMe),
		Type:         "MESSAGE",
	}, nil
}

// handleHistorySync stores the text messages of synced one-to-one conversations
func (w *Whatsapp) handleHistorySync(ctx context.Context, historySync *events.HistorySync) error {
	for _, conv := range historySync.Data.GetConversations() {
		chatJID, err := types.ParseJID(conv.GetId())
		if err != nil || chatJID.Server != types.DefaultUserServer {
			continue
		}

		for _, hmsg := range conv.GetMessages() {
			info := hmsg.GetMessage()
			if info == nil {
				continue
			}

			content := info.GetMessage().GetConversation()
			if content == "" {
				content = info.GetMessage().GetExtendedTextMessage().GetText()
			}
			if content == "" {
				continue
			}

			msg := models.Message{
				ID:           info.GetKey().GetId(),
				ChatID:       chatJID.String(),
				Content:      content,
				CreationDate: time.Unix(int64(info.GetMessageTimestamp()), 0),
				SentBy:       senderOf(info.GetKey().GetFromMe()),
				Type:         "MESSAGE",
			}
			if err := w.record(ctx, msg.ChatID, chatJID.User, conv.GetName(), msg); err != nil {
				return err
			}
		}
	}

	return nil
}

func senderOf(isFromMe bool) string {
	if isFromMe {
		return models.SenderConseiller
	}
	return models.SenderJeune
}
