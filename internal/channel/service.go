package channel

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
	Create(ctx context.Context, c *Channel) (*Channel, error)
	Channel(ctx context.Context, id int64) (*Channel, error)
	Update(ctx context.Context, c *Channel) (*Channel, error)
	Delete(ctx context.Context, id int64) ([]media.Attachment, error)
	IsAdmin(ctx context.Context, channelID, userID int64) (bool, error)
	IsFollower(ctx context.Context, channelID, userID int64) (bool, error)
	AddAdmins(ctx context.Context, channelID int64, userIDs []int64) ([]int64, error)
	Admins(ctx context.Context, channelID int64) ([]Person, error)
	Followers(ctx context.Context, channelID int64) ([]Person, error)
	Follow(ctx context.Context, channelID, userID int64) error
	Unfollow(ctx context.Context, channelID, userID int64) error
	CreateContents(ctx context.Context, channelID, senderID int64, texts []string, atts []media.Attachment) ([]Content, error)
	Content(ctx context.Context, channelID, id int64) (*Content, error)
	UpdateContent(ctx context.Context, c *Content, replaceMedia bool) ([]media.Attachment, error)
	DeleteContent(ctx context.Context, channelID, id int64) ([]media.Attachment, error)
	Contents(ctx context.Context, channelID int64, before time.Time, limit int) ([]Content, error)
	Search(ctx context.Context, channelID int64, q string, limit int) ([]Content, error)
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

func (s *Service) load(ctx context.Context, channelID int64) (*Channel, error) {
	if channelID <= 0 {
		return nil, apperr.Validation("channelId is required")
	}
	return s.store.Channel(ctx, channelID)
}

// admin loads the channel and checks userID administers it.
func (s *Service) admin(ctx context.Context, userID, channelID int64) (*Channel, error) {
	c, err := s.load(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if c.SuperAdminID == userID {
		return c, nil
	}
	ok, err := s.store.IsAdmin(ctx, channelID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Forbidden("only channel admins can do this")
	}
	return c, nil
}

func (s *Service) superAdmin(ctx context.Context, userID, channelID int64) (*Channel, error) {
	c, err := s.load(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if c.SuperAdminID != userID {
		return nil, apperr.Forbidden("only the channel owner can do this")
	}
	return c, nil
}

// reader loads the channel and checks userID follows or administers it.
func (s *Service) reader(ctx context.Context, userID, channelID int64) (*Channel, error) {
	c, err := s.load(ctx, channelID)
	if err != nil {
		return nil, err
	}
	ok, err := s.CanJoin(ctx, userID, channelID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Forbidden("follow the channel to read it")
	}
	return c, nil
}

func (s *Service) Create(ctx context.Context, userID int64, req *CreateRequest) (*Channel, error) {
	name := strings.TrimSpace(req.ChannelName)
	if name == "" {
		return nil, apperr.Validation("channelName is required")
	}
	if err := s.files.Claim(ctx, userID, req.ProfileURL); err != nil {
		return nil, err
	}
	c, err := s.store.Create(ctx, &Channel{
		ChannelName:  name,
		Description:  req.Description,
		ProfileURL:   req.ProfileURL,
		SuperAdminID: userID,
	})
	if err != nil {
		return nil, err
	}
	logging.Info().Int64("channel_id", c.ID).Int64("super_admin_id", userID).Msg("channel created")
	return c, nil
}

// Get returns the admin view (*Details) to admins and the public *Card to
// everyone else.
func (s *Service) Get(ctx context.Context, userID, channelID int64) (any, error) {
	c, err := s.load(ctx, channelID)
	if err != nil {
		return nil, err
	}
	isAdmin := c.SuperAdminID == userID
	if !isAdmin {
		if isAdmin, err = s.store.IsAdmin(ctx, channelID, userID); err != nil {
			return nil, err
		}
	}

	if !isAdmin {
		following, err := s.store.IsFollower(ctx, channelID, userID)
		if err != nil {
			return nil, err
		}
		return &Card{
			ID:          c.ID,
			ChannelName: c.ChannelName,
			Description: c.Description,
			ProfileURL:  c.ProfileURL,
			Following:   following,
		}, nil
	}

	admins, err := s.store.Admins(ctx, channelID)
	if err != nil {
		return nil, err
	}
	followers, err := s.store.Followers(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return &Details{Channel: c, Admins: admins, Followers: followers}, nil
}

func (s *Service) Update(ctx context.Context, userID, channelID int64, req *UpdateRequest) (*Channel, error) {
	c, err := s.admin(ctx, userID, channelID)
	if err != nil {
		return nil, err
	}
	oldPicture := c.ProfileURL
	if req.ChannelName != nil {
		name := strings.TrimSpace(*req.ChannelName)
		if name == "" {
			return nil, apperr.Validation("channelName cannot be empty")
		}
		c.ChannelName = name
	}
	if req.Description != nil {
		c.Description = *req.Description
	}
	if req.ProfileURL != nil && *req.ProfileURL != oldPicture {
		if err := s.files.Claim(ctx, userID, *req.ProfileURL); err != nil {
			return nil, err
		}
		c.ProfileURL = *req.ProfileURL
	}

	updated, err := s.store.Update(ctx, c)
	if err != nil {
		return nil, err
	}
	if oldPicture != "" && oldPicture != updated.ProfileURL {
		s.files.Release(ctx, oldPicture)
	}
	s.emit.ToRoom(ctx, realtime.ChannelRoom(channelID), EventUpdated, updated)
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, userID, channelID int64) error {
	c, err := s.superAdmin(ctx, userID, channelID)
	if err != nil {
		return err
	}
	removed, err := s.store.Delete(ctx, channelID)
	if err != nil {
		return err
	}
	s.files.Release(ctx, append(media.URLs(removed), c.ProfileURL)...)

	room := realtime.ChannelRoom(channelID)
	s.emit.ToRoom(ctx, room, EventDeleted, Deleted{ChannelID: channelID})
	s.emit.Evict(ctx, room)
	logging.Info().Int64("channel_id", channelID).Msg("channel deleted")
	return nil
}

func (s *Service) AddAdmins(ctx context.Context, userID, channelID int64, req *AdminsRequest) ([]int64, error) {
	c, err := s.superAdmin(ctx, userID, channelID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(req.AdminIDs))
	for _, id := range req.AdminIDs {
		if id != c.SuperAdminID {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return []int64{}, nil
	}
	return s.store.AddAdmins(ctx, channelID, ids)
}

func (s *Service) Follow(ctx context.Context, userID, channelID int64) error {
	if _, err := s.load(ctx, channelID); err != nil {
		return err
	}
	return s.store.Follow(ctx, channelID, userID)
}

// Unfollow stops following. Admins keep their room subscription.
func (s *Service) Unfollow(ctx context.Context, userID, channelID int64) error {
	if _, err := s.load(ctx, channelID); err != nil {
		return err
	}
	if err := s.store.Unfollow(ctx, channelID, userID); err != nil {
		return err
	}
	ok, err := s.CanJoin(ctx, userID, channelID)
	if err != nil {
		logging.Warn().Err(err).Int64("channel_id", channelID).Int64("user_id", userID).
			Msg("admin check failed after unfollow, evicting")
	}
	if !ok {
		s.emit.Evict(ctx, realtime.ChannelRoom(channelID), userID)
	}
	return nil
}

func (s *Service) Post(ctx context.Context, userID int64, req *PostRequest) ([]Content, error) {
	if err := checkSender(userID, req.SenderID); err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(req.Contents))
	for _, t := range req.Contents {
		if strings.TrimSpace(t) != "" {
			texts = append(texts, t)
		}
	}
	if len(texts) == 0 {
		if req.Set.Empty() {
			return nil, apperr.Validation("nothing to post")
		}
		texts = append(texts, "")
	}
	if _, err := s.admin(ctx, userID, req.ChannelID); err != nil {
		return nil, err
	}
	if err := s.files.Claim(ctx, userID, media.URLs(req.Set.Attachments())...); err != nil {
		return nil, err
	}

	posted, err := s.store.CreateContents(ctx, req.ChannelID, userID, texts, req.Set.Attachments())
	if err != nil {
		return nil, err
	}
	room := realtime.ChannelRoom(req.ChannelID)
	for i := range posted {
		s.emit.ToOthers(ctx, room, EventContentPosted, &posted[i])
	}
	return posted, nil
}

// editable loads a post and checks userID wrote it or administers the
// channel.
func (s *Service) editable(ctx context.Context, userID, channelID, contentID int64) (*Content, error) {
	if _, err := s.load(ctx, channelID); err != nil {
		return nil, err
	}
	if contentID <= 0 {
		return nil, apperr.Validation("contentId is required")
	}
	c, err := s.store.Content(ctx, channelID, contentID)
	if err != nil {
		return nil, err
	}
	if c.SenderID == userID {
		return c, nil
	}
	if _, err := s.admin(ctx, userID, channelID); err != nil {
		return nil, apperr.Forbidden("only the author or a channel admin can change this post")
	}
	return c, nil
}

func (s *Service) Edit(ctx context.Context, userID int64, req *EditRequest) (*Content, error) {
	if err := checkSender(userID, req.SenderID); err != nil {
		return nil, err
	}
	if req.Content == nil && req.Media == nil {
		return nil, apperr.Validation("nothing to change")
	}
	c, err := s.editable(ctx, userID, req.ChannelID, req.ContentID)
	if err != nil {
		return nil, err
	}

	if req.Content != nil {
		c.Content = *req.Content
	}
	if req.Media != nil {
		next := req.Media.Attachments()
		if err := s.files.Claim(ctx, userID, media.Added(c.Attachments, next)...); err != nil {
			return nil, err
		}
		c.Attachments = next
	}
	if strings.TrimSpace(c.Content) == "" && len(c.Attachments) == 0 {
		return nil, apperr.Validation("post needs content or an attachment")
	}

	kept := c.Attachments
	old, err := s.store.UpdateContent(ctx, c, req.Media != nil)
	if err != nil {
		return nil, err
	}
	if req.Media != nil {
		s.files.Release(ctx, media.Orphaned(old, kept)...)
	}

	s.emit.ToRoom(ctx, realtime.ChannelRoom(req.ChannelID), EventContentEdited, c)
	return c, nil
}

func (s *Service) DeleteContent(ctx context.Context, userID int64, req *DeleteRequest) error {
	if err := checkSender(userID, req.SenderID); err != nil {
		return err
	}
	if _, err := s.editable(ctx, userID, req.ChannelID, req.ContentID); err != nil {
		return err
	}
	removed, err := s.store.DeleteContent(ctx, req.ChannelID, req.ContentID)
	if err != nil {
		return err
	}
	s.files.Release(ctx, media.URLs(removed)...)

	s.emit.ToRoom(ctx, realtime.ChannelRoom(req.ChannelID), EventContentDeleted, ContentRef{ChannelID: req.ChannelID, ContentID: req.ContentID})
	return nil
}

func (s *Service) History(ctx context.Context, userID, channelID int64, before time.Time, limit int) ([]Content, error) {
	if _, err := s.reader(ctx, userID, channelID); err != nil {
		return nil, err
	}
	return s.store.Contents(ctx, channelID, before, limit)
}

func (s *Service) Search(ctx context.Context, userID, channelID int64, q string) ([]Content, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, apperr.Validation("search query is required")
	}
	if _, err := s.reader(ctx, userID, channelID); err != nil {
		return nil, err
	}
	return s.store.Search(ctx, channelID, q, searchLimit)
}

// CanJoin reports whether userID may subscribe to channel_<channelID>:
// admins and followers may.
func (s *Service) CanJoin(ctx context.Context, userID, channelID int64) (bool, error) {
	ok, err := s.store.IsAdmin(ctx, channelID, userID)
	if err != nil || ok {
		return ok, err
	}
	return s.store.IsFollower(ctx, channelID, userID)
}
