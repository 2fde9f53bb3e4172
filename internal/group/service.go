package group

import (
	"context"
	"strings"
	"time"

	"go-messenger/internal/apperr"
	"go-messenger/internal/logging"
	"go-messenger/internal/media"
	"go-messenger/internal/realtime"
)

const searchLimit = 50

type Store interface {
	Create(ctx context.Context, g *Group) (*Group, error)
	Group(ctx context.Context, id int64) (*Group, error)
	IsMember(ctx context.Context, groupID, userID int64) (bool, error)
	Members(ctx context.Context, groupID int64) ([]Member, error)
	AddMembers(ctx context.Context, groupID int64, userIDs []int64) ([]int64, error)
	RemoveMembers(ctx context.Context, groupID int64, userIDs []int64) ([]int64, error)
	Leave(ctx context.Context, groupID, userID int64) error
	Delete(ctx context.Context, groupID int64) ([]media.Attachment, error)
	CreateMessage(ctx context.Context, m *Message) (*Message, error)
	Message(ctx context.Context, groupID, id int64) (*Message, error)
	UpdateMessage(ctx context.Context, m *Message, replaceMedia bool) ([]media.Attachment, error)
	DeleteMessages(ctx context.Context, groupID int64, ids []int64) ([]int64, []media.Attachment, error)
	Messages(ctx context.Context, groupID int64, before time.Time, limit int) ([]Message, error)
	Search(ctx context.Context, groupID int64, q string, limit int) ([]Message, error)
}

// Emitter pushes events to room members and revokes room subscriptions.
type Emitter interface {
	ToRoom(ctx context.Context, room, event string, payload any)
	ToOthers(ctx context.Context, room, event string, payload any)
	Evict(ctx context.Context, room string, userIDs ...int64)
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

func load(ctx context.Context, s Store, groupID int64) (*Group, error) {
	if groupID <= 0 {
		return nil, apperr.Validation("groupId is required")
	}
	return s.Group(ctx, groupID)
}

// member loads the group and checks userID belongs to it.
func (s *Service) member(ctx context.Context, userID, groupID int64) (*Group, error) {
	g, err := load(ctx, s.store, groupID)
	if err != nil {
		return nil, err
	}
	ok, err := s.store.IsMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Forbidden("you are not a member of this group")
	}
	return g, nil
}

// admin loads the group and checks userID is its admin.
func (s *Service) admin(ctx context.Context, userID, groupID int64) (*Group, error) {
	g, err := load(ctx, s.store, groupID)
	if err != nil {
		return nil, err
	}
	if g.AdminID != userID {
		return nil, apperr.Forbidden("only the group admin can do this")
	}
	return g, nil
}

func (s *Service) Create(ctx context.Context, userID int64, req *CreateRequest) (*Group, error) {
	if strings.TrimSpace(req.GroupName) == "" {
		return nil, apperr.Validation("groupName is required")
	}
	if err := s.files.Claim(ctx, userID, req.ProfileURL); err != nil {
		return nil, err
	}
	g, err := s.store.Create(ctx, &Group{
		GroupName:   strings.TrimSpace(req.GroupName),
		Description: req.Description,
		ProfileURL:  req.ProfileURL,
		AdminID:     userID,
	})
	if err != nil {
		return nil, err
	}
	logging.Info().Int64("group_id", g.ID).Int64("admin_id", userID).Msg("group created")
	return g, nil
}

func (s *Service) Biography(ctx context.Context, userID, groupID int64) (*Biography, error) {
	g, err := s.member(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}
	members, err := s.store.Members(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return &Biography{Group: g, Members: members}, nil
}

func (s *Service) AddMembers(ctx context.Context, userID, groupID int64, req *MembersRequest) ([]int64, error) {
	if _, err := s.admin(ctx, userID, groupID); err != nil {
		return nil, err
	}
	added, err := s.store.AddMembers(ctx, groupID, req.MemberIDs)
	if err != nil {
		return nil, err
	}
	if len(added) > 0 {
		s.emit.ToRoom(ctx, realtime.GroupRoom(groupID), EventMembersAdded, MembersChanged{GroupID: groupID, MemberIDs: added})
	}
	return added, nil
}

func (s *Service) RemoveMembers(ctx context.Context, userID, groupID int64, req *MembersRequest) ([]int64, error) {
	g, err := s.admin(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}
	for _, id := range req.MemberIDs {
		if id == g.AdminID {
			return nil, apperr.Validation("the admin cannot be removed; delete the group instead")
		}
	}
	removed, err := s.store.RemoveMembers(ctx, groupID, req.MemberIDs)
	if err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		room := realtime.GroupRoom(groupID)
		s.emit.ToRoom(ctx, room, EventMembersRemoved, MembersChanged{GroupID: groupID, MemberIDs: removed})
		s.emit.Evict(ctx, room, removed...)
	}
	return removed, nil
}

// Leave takes the caller out of the group. Their messages stay, without a
// sender.
func (s *Service) Leave(ctx context.Context, userID, groupID int64) error {
	g, err := s.member(ctx, userID, groupID)
	if err != nil {
		return err
	}
	if g.AdminID == userID {
		return apperr.Validation("the admin cannot leave; delete the group instead")
	}
	if err := s.store.Leave(ctx, groupID, userID); err != nil {
		return err
	}
	room := realtime.GroupRoom(groupID)
	s.emit.ToRoom(ctx, room, EventMemberLeft, MemberLeft{GroupID: groupID, UserID: userID})
	s.emit.Evict(ctx, room, userID)
	return nil
}

func (s *Service) Delete(ctx context.Context, userID, groupID int64) error {
	g, err := s.admin(ctx, userID, groupID)
	if err != nil {
		return err
	}
	removed, err := s.store.Delete(ctx, groupID)
	if err != nil {
		return err
	}
	s.files.Release(ctx, append(media.URLs(removed), g.ProfileURL)...)

	room := realtime.GroupRoom(groupID)
	s.emit.ToRoom(ctx, room, EventGroupDeleted, Deleted{GroupID: groupID})
	s.emit.Evict(ctx, room)
	logging.Info().Int64("group_id", groupID).Msg("group deleted")
	return nil
}

func (s *Service) Send(ctx context.Context, userID int64, req *SendRequest) (*Message, error) {
	if err := checkSender(userID, req.SenderID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Content) == "" && req.Set.Empty() {
		return nil, apperr.Validation("message needs content or an attachment")
	}
	if _, err := s.member(ctx, userID, req.GroupID); err != nil {
		return nil, err
	}
	if err := s.files.Claim(ctx, userID, media.URLs(req.Set.Attachments())...); err != nil {
		return nil, err
	}

	msg, err := s.store.CreateMessage(ctx, &Message{
		GroupID:     req.GroupID,
		SenderID:    userID,
		Content:     req.Content,
		Attachments: req.Set.Attachments(),
	})
	if err != nil {
		return nil, err
	}
	s.emit.ToOthers(ctx, realtime.GroupRoom(req.GroupID), EventMessageReceived, msg)
	return msg, nil
}

// ownMessage loads a message of the group and checks userID wrote it.
func (s *Service) ownMessage(ctx context.Context, userID, groupID, messageID int64) (*Message, error) {
	if _, err := s.member(ctx, userID, groupID); err != nil {
		return nil, err
	}
	if messageID <= 0 {
		return nil, apperr.Validation("messageId is required")
	}
	msg, err := s.store.Message(ctx, groupID, messageID)
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
	msg, err := s.ownMessage(ctx, userID, req.GroupID, req.MessageID)
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

	s.emit.ToRoom(ctx, realtime.GroupRoom(req.GroupID), EventMessageEdited, msg)
	return msg, nil
}

func (s *Service) DeleteMessage(ctx context.Context, userID int64, req *DeleteRequest) error {
	if err := checkSender(userID, req.SenderID); err != nil {
		return err
	}
	if _, err := s.ownMessage(ctx, userID, req.GroupID, req.MessageID); err != nil {
		return err
	}
	deleted, removed, err := s.store.DeleteMessages(ctx, req.GroupID, []int64{req.MessageID})
	if err != nil {
		return err
	}
	if len(deleted) == 0 {
		return apperr.NotFound(messageNotFound)
	}
	s.files.Release(ctx, media.URLs(removed)...)

	s.emit.ToRoom(ctx, realtime.GroupRoom(req.GroupID), EventMessageDeleted, MessageRef{GroupID: req.GroupID, MessageID: req.MessageID})
	return nil
}

// DeleteMessages lets the admin remove any messages of the group. It
// returns the ids that existed.
func (s *Service) DeleteMessages(ctx context.Context, userID, groupID int64, req *BulkDeleteRequest) ([]int64, error) {
	if _, err := s.admin(ctx, userID, groupID); err != nil {
		return nil, err
	}
	deleted, removed, err := s.store.DeleteMessages(ctx, groupID, req.MessageIDs)
	if err != nil {
		return nil, err
	}
	s.files.Release(ctx, media.URLs(removed)...)

	if len(deleted) > 0 {
		s.emit.ToRoom(ctx, realtime.GroupRoom(groupID), EventMessagesDeleted, MessagesDeleted{GroupID: groupID, MessageIDs: deleted})
	}
	return deleted, nil
}

func (s *Service) History(ctx context.Context, userID, groupID int64, before time.Time, limit int) ([]Message, error) {
	if _, err := s.member(ctx, userID, groupID); err != nil {
		return nil, err
	}
	return s.store.Messages(ctx, groupID, before, limit)
}

func (s *Service) Search(ctx context.Context, userID, groupID int64, q string) ([]Message, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, apperr.Validation("search query is required")
	}
	if _, err := s.member(ctx, userID, groupID); err != nil {
		return nil, err
	}
	return s.store.Search(ctx, groupID, q, searchLimit)
}

// CanJoin reports whether userID may subscribe to group_<groupID>.
func (s *Service) CanJoin(ctx context.Context, userID, groupID int64) (bool, error) {
	return s.store.IsMember(ctx, groupID, userID)
}
