package contact

import (
	"context"
	"strings"
	"time"

	"go-messenger/internal/apperr"
	"go-messenger/internal/media"
	"go-messenger/internal/realtime"
)

const searchLimit = 50

type Store interface {
	Create(ctx context.Context, c *Contact, first *Message) (*Contact, *Message, error)
	Contact(ctx context.Context, id int64) (*Contact, error)
	CreateMessage(ctx context.Context, m *Message) (*Message, error)
	Message(ctx context.Context, chatID, id int64) (*Message, error)
	UpdateMessage(ctx context.Context, m *Message, replaceMedia bool) ([]media.Attachment, error)
	DeleteMessage(ctx context.Context, chatID, id int64) ([]media.Attachment, error)
	DeleteSenderMessages(ctx context.Context, chatID, senderID int64) ([]media.Attachment, int, error)
	Delete(ctx context.Context, chatID int64) ([]media.Attachment, error)
	Messages(ctx context.Context, chatID int64, before time.Time, limit int) ([]Message, error)
	Search(ctx context.Context, chatID int64, q string, limit int) ([]Message, error)
}

// Emitter pushes events to room members. ToOthers leaves out the
// connection that issued the current command.
type Emitter interface {
	ToRoom(ctx context.Context, room, event string, payload any)
	ToOthers(ctx context.Context, room, event string, payload any)
}

type Service struct {
	store Store
	emit  Emitter
	files media.Files
}

func NewService(store Store, emit Emitter, files media.Files) *Service {
	return &Service{store: store, emit: emit, files: files}
}

func checkSender(userID, claimed int64) error {
	if claimed != 0 && claimed != userID {
		return apperr.Forbidden("senderId does not match the authenticated user")
	}
	return nil
}

func checkNotEmpty(content string, set media.Set) error {
	if strings.TrimSpace(content) == "" && set.Empty() {
		return apperr.Validation("message needs content or an attachment")
	}
	return nil
}

// participant loads the chat and checks userID is one of its two people.
func (s *Service) participant(ctx context.Context, userID, chatID int64) (*Contact, error) {
	if chatID <= 0 {
		return nil, apperr.Validation("chatId is required")
	}
	c, err := s.store.Contact(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !c.Has(userID) {
		return nil, apperr.Forbidden("you are not part of this chat")
	}
	return c, nil
}

func (s *Service) Start(ctx context.Context, userID int64, req *StartRequest) (*StartedChat, error) {
	if req.SecondPersonID == userID {
		return nil, apperr.Validation("cannot start a chat with yourself")
	}
	if err := checkNotEmpty(req.Content, req.Set); err != nil {
		return nil, err
	}
	if err := s.files.Claim(ctx, userID, media.URLs(req.Set.Attachments())...); err != nil {
		return nil, err
	}

	c, msg, err := s.store.Create(ctx,
		&Contact{FirstPersonID: userID, SecondPersonID: req.SecondPersonID},
		&Message{SenderID: userID, Content: req.Content, Attachments: req.Set.Attachments()},
	)
	if err != nil {
		return nil, err
	}

	started := &StartedChat{Contact: c, Message: msg}
	s.emit.ToRoom(ctx, realtime.ChatRoom(c.ID), EventStartChat, started)
	return started, nil
}

func (s *Service) Send(ctx context.Context, userID int64, req *SendRequest) (*Message, error) {
	if err := checkSender(userID, req.SenderID); err != nil {
		return nil, err
	}
	if err := checkNotEmpty(req.Content, req.Set); err != nil {
		return nil, err
	}
	if _, err := s.participant(ctx, userID, req.ChatID); err != nil {
		return nil, err
	}
	if err := s.files.Claim(ctx, userID, media.URLs(req.Set.Attachments())...); err != nil {
		return nil, err
	}

	msg, err := s.store.CreateMessage(ctx, &Message{
		ChatID:      req.ChatID,
		SenderID:    userID,
		Content:     req.Content,
		Attachments: req.Set.Attachments(),
	})
	if err != nil {
		return nil, err
	}

	s.emit.ToOthers(ctx, realtime.ChatRoom(req.ChatID), EventReceiveMessage, msg)
	return msg, nil
}

// ownMessage loads a message of the chat and checks userID wrote it.
func (s *Service) ownMessage(ctx context.Context, userID, chatID, messageID int64) (*Message, error) {
	if _, err := s.participant(ctx, userID, chatID); err != nil {
		return nil, err
	}
	if messageID <= 0 {
		return nil, apperr.Validation("messageId is required")
	}
	msg, err := s.store.Message(ctx, chatID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, apperr.Forbidden("you can only change your own messages")
	}
	return msg, nil
}

func (s *Service) Edit(ctx context.Context, userID int64, req *EditRequest) (*Message, error) {
	if err := checkSender(userID, req.SenderID); err != nil {
		return nil, err
	}
	if req.Content == nil && req.Media == nil {
		return nil, apperr.Validation("nothing to change")
	}
	msg, err := s.ownMessage(ctx, userID, req.ChatID, req.MessageID)
	if err != nil {
		return nil, err
	}

	if req.Content != nil {
		msg.Content = *req.Content
	}
	if req.Media != nil {
		next := req.Media.Attachments()
		if err := s.files.Claim(ctx, userID, media.Added(msg.Attachments, next)...); err != nil {
			return nil, err
		}
		msg.Attachments = next
	}
	if strings.TrimSpace(msg.Content) == "" && len(msg.Attachments) == 0 {
		return nil, apperr.Validation("message needs content or an attachment")
	}

	kept := msg.Attachments
	old, err := s.store.UpdateMessage(ctx, msg, req.Media != nil)
	if err != nil {
		return nil, err
	}
	if req.Media != nil {
		s.files.Release(ctx, media.Orphaned(old, kept)...)
	}

	s.emit.ToRoom(ctx, realtime.ChatRoom(req.ChatID), EventMessageEdited, msg)
	return msg, nil
}

func (s *Service) Delete(ctx context.Context, userID int64, req *DeleteRequest) error {
	if err := checkSender(userID, req.SenderID); err != nil {
		return err
	}
	if _, err := s.ownMessage(ctx, userID, req.ChatID, req.MessageID); err != nil {
		return err
	}

	removed, err := s.store.DeleteMessage(ctx, req.ChatID, req.MessageID)
	if err != nil {
		return err
	}
	s.files.Release(ctx, media.URLs(removed)...)

	s.emit.ToRoom(ctx, realtime.ChatRoom(req.ChatID), EventMessageDeleted, MessageRef{ChatID: req.ChatID, MessageID: req.MessageID})
	return nil
}

// DeleteConversation removes the caller's side of a chat. If the other
// person still has messages there, only the caller's messages go;
// otherwise the whole contact is deleted. It reports whether it was.
func (s *Service) DeleteConversation(ctx context.Context, userID, chatID int64) (bool, error) {
	if _, err := s.participant(ctx, userID, chatID); err != nil {
		return false, err
	}

	removed, remaining, err := s.store.DeleteSenderMessages(ctx, chatID, userID)
	if err != nil {
		return false, err
	}
	s.files.Release(ctx, media.URLs(removed)...)

	room := realtime.ChatRoom(chatID)
	if remaining > 0 {
		s.emit.ToRoom(ctx, room, EventUserMessagesDeleted, UserMessagesDeleted{ChatID: chatID, UserID: userID})
		return false, nil
	}

	removed, err = s.store.Delete(ctx, chatID)
	if err != nil {
		return false, err
	}
	s.files.Release(ctx, media.URLs(removed)...)
	s.emit.ToRoom(ctx, room, EventContactDeleted, ContactDeleted{ChatID: chatID})
	return true, nil
}

func (s *Service) History(ctx context.Context, userID, chatID int64, before time.Time, limit int) (*History, error) {
	if _, err := s.participant(ctx, userID, chatID); err != nil {
		return nil, err
	}
	msgs, err := s.store.Messages(ctx, chatID, before, limit)
	if err != nil {
		return nil, err
	}

	h := &History{Mine: []Message{}, Theirs: []Message{}}
	for _, m := range msgs {
		if m.SenderID == userID {
			h.Mine = append(h.Mine, m)
		} else {
			h.Theirs = append(h.Theirs, m)
		}
	}
	return h, nil
}

func (s *Service) Search(ctx context.Context, userID, chatID int64, q string) ([]Message, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, apperr.Validation("search query is required")
	}
	if _, err := s.participant(ctx, userID, chatID); err != nil {
		return nil, err
	}
	return s.store.Search(ctx, chatID, q, searchLimit)
}

// CanJoin reports whether userID may subscribe to chat_<chatID>.
func (s *Service) CanJoin(ctx context.Context, userID, chatID int64) (bool, error) {
	c, err := s.store.Contact(ctx, chatID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return c.Has(userID), nil
}
