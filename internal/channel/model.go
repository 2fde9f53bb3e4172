package channel

import (
	"time"

	"go-messenger/internal/media"
)

// Events emitted to channel_<id> rooms.
const (
	EventUpdated        = "channel_updated"
	EventDeleted        = "channel_deleted"
	EventContentPosted  = "channel_content_posted"
	EventContentEdited  = "channel_content_edited"
	EventContentDeleted = "channel_content_deleted"
)

type Channel struct {
	ID           int64     `json:"id"`
	ChannelName  string    `json:"channelName"`
	Description  string    `json:"description"`
	ProfileURL   string    `json:"profileUrl"`
	SuperAdminID int64     `json:"superAdminId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Card is what non-admins see of a channel.
type Card struct {
	ID          int64  `json:"id"`
	ChannelName string `json:"channelName"`
	Description string `json:"description"`
	ProfileURL  string `json:"profileUrl"`
	Following   bool   `json:"following"`
}

type Person struct {
	UserID     int64  `json:"userId"`
	Username   string `json:"username"`
	ProfileURL string `json:"profileUrl"`
}

// Details is the admin view of a channel.
type Details struct {
	*Channel
	Admins    []Person `json:"admins"`
	Followers []Person `json:"followers"`
}

// Content is one post. SenderID is 0 once the author's account is gone.
type Content struct {
	ID          int64              `json:"id"`
	ChannelID   int64              `json:"channelId"`
	SenderID    int64              `json:"senderId"`
	Content     string             `json:"content"`
	IsEdited    bool               `json:"isEdited"`
	CreatedAt   time.Time          `json:"createdAt"`
	Attachments []media.Attachment `json:"attachments"`
}

type CreateRequest struct {
	ChannelName string `json:"channelName" validate:"required,max=100"`
	Description string `json:"description" validate:"max=1000"`
	ProfileURL  string `json:"profileUrl" validate:"max=2048"`
}

type UpdateRequest struct {
	ChannelName *string `json:"channelName" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	ProfileURL  *string `json:"profileUrl" validate:"omitempty,max=2048"`
}

type AdminsRequest struct {
	AdminIDs []int64 `json:"adminIds" validate:"required,min=1,max=100,dive,gt=0"`
}

// PostRequest publishes one row per entry of Contents. Attachments go with
// the first row, or with a row of their own when Contents is empty.
type PostRequest struct {
	ChannelID int64    `json:"channelId"`
	SenderID  int64    `json:"senderId"`
	Contents  []string `json:"contents" validate:"max=20,dive,max=4096"`
	media.Set
}

type EditRequest struct {
	ChannelID int64      `json:"channelId"`
	ContentID int64      `json:"contentId"`
	SenderID  int64      `json:"senderId"`
	Content   *string    `json:"content" validate:"omitempty,max=4096"`
	Media     *media.Set `json:"media"`
}

type DeleteRequest struct {
	ChannelID int64 `json:"channelId"`
	ContentID int64 `json:"contentId"`
	SenderID  int64 `json:"senderId"`
}

type ContentRef struct {
	ChannelID int64 `json:"channelId"`
	ContentID int64 `json:"contentId"`
}

type Deleted struct {
	ChannelID int64 `json:"channelId"`
}
