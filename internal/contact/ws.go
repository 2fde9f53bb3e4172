package contact

import (
	"context"

	"github.com/goccy/go-json"

	"go-messenger/internal/realtime"
)

// RegisterCommands wires the chat commands into the WebSocket router and
// makes join_chat check that the caller belongs to the chat.
func RegisterCommands(rt *realtime.Router, s *Service) {
	rt.Policy(realtime.KindChat, s.CanJoin)

	rt.Handle("send_message", func(ctx context.Context, c *realtime.Conn, data json.RawMessage) (any, error) {
		var req SendRequest
		if err := realtime.Decode(data, &req); err != nil {
			return nil, err
		}
		return s.Send(ctx, c.UserID(), &req)
	})

	rt.Handle("edit_message", func(ctx context.Context, c *realtime.Conn, data json.RawMessage) (any, error) {
		var req EditRequest
		if err := realtime.Decode(data, &req); err != nil {
			return nil, err
		}
		return s.Edit(ctx, c.UserID(), &req)
	})

	rt.Handle("delete_message", func(ctx context.Context, c *realtime.Conn, data json.RawMessage) (any, error) {
		var req DeleteRequest
		if err := realtime.Decode(data, &req); err != nil {
			return nil, err
		}
		if err := s.Delete(ctx, c.UserID(), &req); err != nil {
			return nil, err
		}
		return MessageRef{ChatID: req.ChatID, MessageID: req.MessageID}, nil
	})
}
