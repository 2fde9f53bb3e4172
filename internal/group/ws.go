package group

import (
	"context"

	"github.com/goccy/go-json"

	"go-messenger/internal/realtime"
)

func RegisterCommands(rt *realtime.Router, s *Service) {
	rt.Policy(realtime.KindGroup, s.CanJoin)

	rt.Handle("send_group_message", func(ctx context.Context, c *realtime.Conn, data json.RawMessage) (any, error) {
		var req SendRequest
		if err := realtime.Decode(data, &req); err != nil {
			return nil, err
		}
		return s.Send(ctx, c.UserID(), &req)
	})

	rt.Handle("edit_group_message", func(ctx context.Context, c *realtime.Conn, data json.RawMessage) (any, error) {
		var req EditRequest
		if err := realtime.Decode(data, &req); err != nil {
			return nil, err
		}
		return s.Edit(ctx, c.UserID(), &req)
	})

	rt.Handle("delete_group_message", func(ctx context.Context, c *realtime.Conn, data json.RawMessage) (any, error) {
		var req DeleteRequest
		if err := realtime.Decode(data, &req); err != nil {
			return nil, err
		}
		if err := s.DeleteMessage(ctx, c.UserID(), &req); err != nil {
			return nil, err
		}
		return MessageRef{GroupID: req.GroupID, MessageID: req.MessageID}, nil
	})
}
