package realtime

import (
	"context"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"go-messenger/internal/apperr"
	"go-messenger/internal/auth"
	"go-messenger/internal/logging"
	"go-messenger/internal/metrics"
	"go-messenger/internal/validation"
)

const (
	EventAck   = "ack"
	EventError = "error"
)

// CommandFunc handles one inbound command. A non-nil result is sent back to
// the issuing connection inside an ack frame.
type CommandFunc func(ctx context.Context, c *Conn, data json.RawMessage) (any, error)

// JoinPolicy reports whether userID may subscribe to the conversation id.
type JoinPolicy func(ctx context.Context, userID, id int64) (bool, error)

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Ref   string          `json:"ref,omitempty"`
}

// Ack confirms a command. Ref echoes the client's correlation id.
type Ack struct {
	Command string `json:"command"`
	Ref     string `json:"ref,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// CommandError is sent only to the issuing connection.
type CommandError struct {
	Command string      `json:"command,omitempty"`
	Ref     string      `json:"ref,omitempty"`
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

type RouterConfig struct {
	// CommandTimeout bounds each command, including its store calls.
	CommandTimeout time.Duration
	// AuthorizeJoins makes join_<kind> consult the kind's JoinPolicy.
	AuthorizeJoins bool
	// CommandRate and CommandBurst shape a token bucket per connection.
	// A zero rate leaves connections unlimited.
	CommandRate  float64
	CommandBurst int
}

// Router maps command names to handlers. join_<kind> and leave_<kind> for
// chat, group and channel are built in.
type Router struct {
	registry *Registry
	cfg      RouterConfig
	policies map[Kind]JoinPolicy
	handlers map[string]CommandFunc
}

func NewRouter(registry *Registry, cfg RouterConfig) *Router {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 5 * time.Second
	}
	rt := &Router{
		registry: registry,
		cfg:      cfg,
		policies: make(map[Kind]JoinPolicy),
		handlers: make(map[string]CommandFunc),
	}
	for _, kind := range []Kind{KindChat, KindGroup, KindChannel} {
		rt.Handle("join_"+string(kind), rt.join(kind))
		rt.Handle("leave_"+string(kind), rt.leave(kind))
	}
	return rt
}

// newLimiter returns the command limiter for a new connection, or nil when
// commands are not rate limited.
func (rt *Router) newLimiter() *rate.Limiter {
	if rt.cfg.CommandRate <= 0 {
		return nil
	}
	burst := rt.cfg.CommandBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rt.cfg.CommandRate), burst)
}

var errTooManyCommands = apperr.Validation("too many commands, slow down")

// Handle registers fn under command, replacing any earlier registration.
func (rt *Router) Handle(command string, fn CommandFunc) {
	rt.handlers[command] = fn
}

// Policy sets the membership check used when joining rooms of kind.
func (rt *Router) Policy(kind Kind, p JoinPolicy) {
	rt.policies[kind] = p
}

type roomResult struct {
	Room string `json:"room"`
}

func (rt *Router) join(kind Kind) CommandFunc {
	return func(ctx context.Context, c *Conn, data json.RawMessage) (any, error) {
		id, err := DecodeID(data)
		if err != nil {
			return nil, err
		}
		if rt.cfg.AuthorizeJoins {
			if p, ok := rt.policies[kind]; ok {
				allowed, err := p(ctx, c.UserID(), id)
				if err != nil {
					return nil, err
				}
				if !allowed {
					return nil, apperr.Forbidden("not a member of this " + string(kind))
				}
			}
		}
		room := RoomKey(kind, id)
		rt.registry.Join(c, room)
		return roomResult{Room: room}, nil
	}
}

func (rt *Router) leave(kind Kind) CommandFunc {
	return func(_ context.Context, c *Conn, data json.RawMessage) (any, error) {
		id, err := DecodeID(data)
		if err != nil {
			return nil, err
		}
		room := RoomKey(kind, id)
		rt.registry.Leave(c, room)
		return roomResult{Room: room}, nil
	}
}

// dispatch runs one raw command for c and replies with ack or error.
func (rt *Router) dispatch(c *Conn, raw []byte) {
	var cmd inbound
	if err := json.Unmarshal(raw, &cmd); err != nil || cmd.Event == "" {
		rt.fail(c, cmd, apperr.Validation("malformed command"))
		return
	}
	fn, ok := rt.handlers[cmd.Event]
	if !ok {
		rt.fail(c, cmd, apperr.Validation("unknown command "+strconv.Quote(cmd.Event)))
		return
	}
	if c.limiter != nil && !c.limiter.Allow() {
		rt.fail(c, cmd, errTooManyCommands)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), rt.cfg.CommandTimeout)
	defer cancel()
	ctx = auth.WithIdentity(WithOrigin(ctx, c.id), c.identity)

	result, err := fn(ctx, c, cmd.Data)
	if err != nil {
		rt.fail(c, cmd, err)
		return
	}
	metrics.CommandsTotal.WithLabelValues(cmd.Event, "ok").Inc()
	reply(c, EventAck, Ack{Command: cmd.Event, Ref: cmd.Ref, Data: result})
}

func (rt *Router) fail(c *Conn, cmd inbound, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindPersistence {
		logging.Error().Err(err).Str("command", cmd.Event).Int64("user_id", c.UserID()).Msg("command failed")
	}
	command := cmd.Event
	if _, known := rt.handlers[command]; !known {
		command = "unknown"
	}
	metrics.CommandsTotal.WithLabelValues(command, string(kind)).Inc()
	reply(c, EventError, CommandError{
		Command: cmd.Event,
		Ref:     cmd.Ref,
		Kind:    kind,
		Message: apperr.PublicMessage(err),
	})
}

func reply(c *Conn, event string, payload any) {
	frame, err := json.Marshal(Frame{Event: event, Data: payload})
	if err != nil {
		logging.Error().Err(err).Str("event", event).Msg("encode reply")
		return
	}
	if !c.deliver(frame) {
		metrics.DeliveriesDropped.Inc()
	}
}

// Decode unmarshals a command payload into v and validates it.
func Decode(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return apperr.Validation("missing payload")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperr.Validation("invalid payload")
	}
	return validation.Struct(v)
}

// DecodeID reads a conversation id sent either as a number or as a string.
func DecodeID(data json.RawMessage) (int64, error) {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		if id, err := n.Int64(); err == nil && id > 0 {
			return id, nil
		}
		return 0, apperr.Validation("id must be a positive integer")
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if id, err := strconv.ParseInt(s, 10, 64); err == nil && id > 0 {
			return id, nil
		}
	}
	return 0, apperr.Validation("id must be a positive integer")
}
