package channel

import (
	"context"

	"github.com/goccy/go-json"

	"go-messenger/internal/realtime"
)

func RegisterCommands(rt *realtime.Router, s *Service) {
	rt.Policy(realtime.KindChannel, s.CanJoin)

	rt.Handle("post_channel_content", func(ctx context.Context, c *realtime.Conn, data json.RawMessage) (any, error) {
		var req PostRequest
		if err := realtime.Decode(data, &req); err != nil {
			return nil, err
		}
		return s.Post(ctx, c.UserID(), &req)
	})

	rt.Handle("edit_channel_content", func(ctx context.Context, c *realtime.Conn, data json.RawMessage) (any, error) {
		var req EditRequest
		if err := realtime.Decode(data, &req); err != nil {
			return nil, err
		}
		return s.Edit(ctx, c.UserID(), &req)
	})

	rt.Handle("delete_channel_content", func(ctx context.Context, c *realtime.Conn, data json.RawMessage) (any, error) {
		var req DeleteRequest
		if err := realtime.Decode(data, &req); err != nil {
			return nil, err
		}
		if err := s.DeleteContent(ctx, c.UserID(), &req); err != nil {
			return nil, err
		}
		return ContentRef{ChannelID: req.ChannelID, ContentID: req.ContentID}, nil
	})
}
