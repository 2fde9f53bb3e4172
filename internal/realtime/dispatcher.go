package realtime

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"go-messenger/internal/logging"
	"go-messenger/internal/metrics"
)

const relayPublishTimeout = 2 * time.Second

// Frame is the outbound envelope written to every client.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Dispatcher fans events out to room members. Delivery is best effort:
// broadcasting never fails, an empty or unknown room is a no-op, and a
// member whose queue is full simply misses the event.
type Dispatcher struct {
	registry   *Registry
	relay      Relay
	instanceID string
}

// NewDispatcher returns a dispatcher over registry. relay may be nil, in
// which case events only reach connections on this instance.
func NewDispatcher(registry *Registry, relay Relay, instanceID string) *Dispatcher {
	return &Dispatcher{registry: registry, relay: relay, instanceID: instanceID}
}

// Broadcast sends event to every member of room except the connection whose
// id equals excludeConnID. Pass "" to include everyone.
func (d *Dispatcher) Broadcast(room, event string, payload any, excludeConnID string) {
	frame, err := json.Marshal(Frame{Event: event, Data: payload})
	if err != nil {
		logging.Error().Err(err).Str("event", event).Str("room", room).Msg("encode event")
		return
	}

	d.deliverLocal(room, event, frame, excludeConnID, "local")
	d.publish(Envelope{
		Room:    room,
		Event:   event,
		Exclude: excludeConnID,
		Frame:   frame,
	})
}

func (d *Dispatcher) publish(env Envelope) {
	if d.relay == nil {
		return
	}
	env.Instance = d.instanceID
	ctx, cancel := context.WithTimeout(context.Background(), relayPublishTimeout)
	defer cancel()
	if err := d.relay.Publish(ctx, env); err != nil {
		metrics.RelayErrors.Inc()
		if !breakerRejected(err) {
			logging.Warn().Err(err).Str("room", env.Room).Msg("relay publish failed")
		}
	}
}

// Evict unsubscribes the given users from room on every instance, or all
// members when no user is named. Used when membership is revoked or the
// room's subject is deleted.
func (d *Dispatcher) Evict(_ context.Context, room string, userIDs ...int64) {
	n := d.registry.Evict(room, userIDs)
	logging.Debug().Str("room", room).Int("connections", n).Msg("evicted from room")
	d.publish(Envelope{Room: room, Evict: true, Users: userIDs})
}

// ToRoom broadcasts to every member of room.
func (d *Dispatcher) ToRoom(_ context.Context, room, event string, payload any) {
	d.Broadcast(room, event, payload, "")
}

// ToOthers broadcasts to every member of room except the connection that
// issued the current command, if any.
func (d *Dispatcher) ToOthers(ctx context.Context, room, event string, payload any) {
	d.Broadcast(room, event, payload, OriginFrom(ctx))
}

// receive delivers an envelope published by another instance.
func (d *Dispatcher) receive(env Envelope) {
	if env.Instance == d.instanceID {
		return
	}
	if _, _, err := ParseRoomKey(env.Room); err != nil {
		metrics.RelayErrors.Inc()
		logging.Warn().Err(err).Str("instance", env.Instance).Str("event", env.Event).Msg("dropping relayed envelope")
		return
	}
	if env.Evict {
		d.registry.Evict(env.Room, env.Users)
		return
	}
	d.deliverLocal(env.Room, env.Event, env.Frame, env.Exclude, "relay")
}

func (d *Dispatcher) deliverLocal(room, event string, frame []byte, exclude, origin string) {
	metrics.BroadcastsTotal.WithLabelValues(event, origin).Inc()
	d.registry.each(room, exclude, func(c *Conn) {
		if !c.deliver(frame) {
			metrics.DeliveriesDropped.Inc()
		}
	})
}
