package realtime

import (
	"context"
	"errors"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"go-messenger/internal/logging"
	"go-messenger/internal/metrics"
)

// Envelope is what travels between instances. Frame is already encoded so
// receivers forward it byte for byte. An envelope with Evict set carries no
// frame; it removes Users (or everyone) from Room.
type Envelope struct {
	Instance string          `json:"instance"`
	Room     string          `json:"room"`
	Event    string          `json:"event,omitempty"`
	Exclude  string          `json:"exclude,omitempty"`
	Frame    json.RawMessage `json:"frame,omitempty"`
	Evict    bool            `json:"evict,omitempty"`
	Users    []int64         `json:"users,omitempty"`
}

// Relay carries broadcasts to the other server instances.
type Relay interface {
	Publish(ctx context.Context, env Envelope) error
	// Subscribe blocks, calling handle for every envelope, until ctx ends.
	Subscribe(ctx context.Context, handle func(Envelope)) error
}

// RedisRelay is a Relay over a single Redis pub/sub channel.
type RedisRelay struct {
	client  *redis.Client
	channel string
}

func NewRedisRelay(client *redis.Client, channel string) *RedisRelay {
	return &RedisRelay{client: client, channel: channel}
}

func (r *RedisRelay) Publish(ctx context.Context, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, b).Err()
}

func (r *RedisRelay) Subscribe(ctx context.Context, handle func(Envelope)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reading.
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("relay subscription closed")
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				metrics.RelayErrors.Inc()
				logging.Warn().Err(err).Msg("discarding malformed relay message")
				continue
			}
			handle(env)
		}
	}
}

// Subscriber feeds envelopes from other instances into a dispatcher. It
// returns when the subscription is lost so a supervisor can restart it.
type Subscriber struct {
	relay      Relay
	dispatcher *Dispatcher
}

func NewSubscriber(relay Relay, dispatcher *Dispatcher) *Subscriber {
	return &Subscriber{relay: relay, dispatcher: dispatcher}
}

func (s *Subscriber) Serve(ctx context.Context) error {
	err := s.relay.Subscribe(ctx, s.dispatcher.receive)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	metrics.RelayErrors.Inc()
	if err == nil {
		err = errors.New("relay subscription ended")
	}
	logging.Warn().Err(err).Msg("relay subscription lost")
	return err
}

func (s *Subscriber) String() string { return "relay-subscriber" }
