package realtime

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Kind tags the conversation type a room belongs to.
type Kind string

const (
	KindChat    Kind = "chat"
	KindGroup   Kind = "group"
	KindChannel Kind = "channel"
)

func (k Kind) valid() bool {
	return k == KindChat || k == KindGroup || k == KindChannel
}

// RoomKey builds the room identifier "<kind>_<id>", e.g. chat_42.
func RoomKey(kind Kind, id int64) string {
	return string(kind) + "_" + strconv.FormatInt(id, 10)
}

func ChatRoom(id int64) string    { return RoomKey(KindChat, id) }
func GroupRoom(id int64) string   { return RoomKey(KindGroup, id) }
func ChannelRoom(id int64) string { return RoomKey(KindChannel, id) }

// ParseRoomKey is the inverse of RoomKey.
func ParseRoomKey(key string) (Kind, int64, error) {
	kind, rawID, ok := strings.Cut(key, "_")
	if !ok || !Kind(kind).valid() {
		return "", 0, fmt.Errorf("malformed room key %q", key)
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("malformed room key %q", key)
	}
	return Kind(kind), id, nil
}

type originKey struct{}

// WithOrigin marks ctx as handling a command issued by the connection with
// the given id, so ToOthers can leave that connection out.
func WithOrigin(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, originKey{}, connID)
}

// OriginFrom returns the issuing connection id, or "" for REST requests.
func OriginFrom(ctx context.Context) string {
	id, _ := ctx.Value(originKey{}).(string)
	return id
}
