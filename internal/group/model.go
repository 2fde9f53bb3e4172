package group

import (
	"time"

	"go-messenger/internal/media"
)

// Events emitted to group_<id> rooms.
const (
	EventMembersAdded    = "members_added"
	EventMembersRemoved  = "members_removed"
	EventMemberLeft      = "member_left"
	EventMessageReceived = "group_message_received"
	EventMessageEdited   = "group_message_edited"
	EventMessageDeleted  = "group_message_deleted"
	EventMessagesDeleted = "group_messages_deleted"
	EventGroupDeleted    = "group_deleted"
)

type Group struct {
	ID          int64     `json:"id"`
	GroupName   string    `json:"groupName"`
	Description string    `json:"description"`
	ProfileURL  string    `json:"profileUrl"`
	AdminID     int64     `json:"adminId"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Member struct {
	UserID     int64     `json:"userId"`
	Username   string    `json:"username"`
	ProfileURL string    `json:"profileUrl"`
	JoinedAt   time.Time `json:"joinedAt"`
}

type Biography struct {
	*Group
	Members []Member `json:"members"`
}

// Message is a group message. SenderID is 0 once the sender has left the
// group or deleted their account.
type Message struct {
	ID          int64              `json:"id"`
	GroupID     int64              `json:"groupId"`
	SenderID    int64              `json:"senderId"`
	Content     string             `json:"content"`
	IsEdited    bool               `json:"isEdited"`
	CreatedAt   time.Time          `json:"createdAt"`
	Attachments []media.Attachment `json:"attachments"`
}

type CreateRequest struct {
	GroupName   string `json:"groupName" validate:"required,max=100"`
	Description string `json:"description" validate:"max=1000"`
	ProfileURL  string `json:"profileUrl" validate:"max=2048"`
}

type MembersRequest struct {
	MemberIDs []int64 `json:"memberIds" validate:"required,min=1,max=100,dive,gt=0"`
}

type SendRequest struct {
	GroupID  int64  `json:"groupId"`
	SenderID int64  `json:"senderId"`
	Content  string `json:"content" validate:"max=4096"`
	media.Set
}

type EditRequest struct {
	GroupID   int64      `json:"groupId"`
	MessageID int64      `json:"messageId"`
	SenderID  int64      `json:"senderId"`
	Content   *string    `json:"content" validate:"omitempty,max=4096"`
	Media     *media.Set `json:"media"`
}

type DeleteRequest struct {
	GroupID   int64 `json:"groupId"`
	MessageID int64 `json:"messageId"`
	SenderID  int64 `json:"senderId"`
}

type BulkDeleteRequest struct {
	MessageIDs []int64 `json:"messageIds" validate:"required,min=1,max=100,dive,gt=0"`
}

type MembersChanged struct {
	GroupID   int64   `json:"groupId"`
	MemberIDs []int64 `json:"memberIds"`
}

type MemberLeft struct {
	GroupID int64 `json:"groupId"`
	UserID  int64 `json:"userId"`
}

type MessageRef struct {
	GroupID   int64 `json:"groupId"`
	MessageID int64 `json:"messageId"`
}

type MessagesDeleted struct {
	GroupID    int64   `json:"groupId"`
	MessageIDs []int64 `json:"messageIds"`
}

type Deleted struct {
	GroupID int64 `json:"groupId"`
}
