package contact

import (
	"time"

	"go-messenger/internal/media"
)

// Events emitted to chat_<id> rooms.
const (
	EventStartChat           = "start_chat"
	EventReceiveMessage      = "receive_message"
	EventMessageEdited       = "message_edited"
	EventMessageDeleted      = "message_deleted"
	EventUserMessagesDeleted = "user_messages_deleted"
	EventContactDeleted      = "contact_deleted"
)

// Contact is a one-to-one conversation. Its id is the chat id.
type Contact struct {
	ID             int64     `json:"id"`
	FirstPersonID  int64     `json:"firstPersonId"`
	SecondPersonID int64     `json:"secondPersonId"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (c *Contact) Has(userID int64) bool {
	return c.FirstPersonID == userID || c.SecondPersonID == userID
}

type Message struct {
	ID          int64              `json:"id"`
	ChatID      int64              `json:"chatId"`
	SenderID    int64              `json:"senderId"`
	Content     string             `json:"content"`
	IsEdited    bool               `json:"isEdited"`
	CreatedAt   time.Time          `json:"createdAt"`
	Attachments []media.Attachment `json:"attachments"`
}

type StartRequest struct {
	SecondPersonID int64  `json:"secondPersonId" validate:"required,gt=0"`
	Content        string `json:"content" validate:"max=4096"`
	media.Set
}

// SendRequest is shared by REST, where the chat id comes from the URL, and
// the send_message command, where it is in the payload. SenderID is
// optional; when present it must match the authenticated user.
type SendRequest struct {
	ChatID   int64  `json:"chatId"`
	SenderID int64  `json:"senderId"`
	Content  string `json:"content" validate:"max=4096"`
	media.Set
}

// EditRequest changes the text, the attachments, or both. A nil Media
// keeps the current attachments.
type EditRequest struct {
	ChatID    int64      `json:"chatId"`
	MessageID int64      `json:"messageId"`
	SenderID  int64      `json:"senderId"`
	Content   *string    `json:"content" validate:"omitempty,max=4096"`
	Media     *media.Set `json:"media"`
}

type DeleteRequest struct {
	ChatID    int64 `json:"chatId"`
	MessageID int64 `json:"messageId"`
	SenderID  int64 `json:"senderId"`
}

// History splits a page of messages by author, oldest first.
type History struct {
	Mine   []Message `json:"mine"`
	Theirs []Message `json:"theirs"`
}

type StartedChat struct {
	Contact *Contact `json:"contact"`
	Message *Message `json:"message"`
}

type MessageRef struct {
	ChatID    int64 `json:"chatId"`
	MessageID int64 `json:"messageId"`
}

type UserMessagesDeleted struct {
	ChatID int64 `json:"chatId"`
	UserID int64 `json:"userId"`
}

type ContactDeleted struct {
	ChatID int64 `json:"chatId"`
}
