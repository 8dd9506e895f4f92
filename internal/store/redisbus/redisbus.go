// Package redisbus publishes finished results to Redis: the full result under
// a key, and a short notification on a pub/sub channel.
package redisbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/signalnine/gauntlet/eval"
)

const (
	keyPrefix      = "gauntlet:run:"
	DefaultChannel = "gauntlet.results"
)

var ErrRunNotFound = errors.New("run not found")

// Notification is the message published for every saved run.
type Notification struct {
	RunID     string           `json:"run_id"`
	Label     string           `json:"label"`
	Key       string           `json:"key"`
	CreatedAt time.Time        `json:"created_at"`
	Summary   eval.EvalSummary `json:"summary"`
}

// Publisher implements eval.Sink.
type Publisher struct {
	client  *redis.Client
	channel string
	ttl     time.Duration
}

// New wraps client. An empty channel uses DefaultChannel; ttl 0 keeps keys
// forever.
func New(client *redis.Client, channel string, ttl time.Duration) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{client: client, channel: channel, ttl: ttl}
}

// Dial parses a redis:// URL and checks the connection.
func Dial(ctx context.Context, url, channel string, ttl time.Duration) (*Publisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return New(client, channel, ttl), nil
}

func (p *Publisher) Close() error {
	return p.client.Close()
}

func (p *Publisher) Channel() string { return p.channel }

func RunKey(id string) string { return keyPrefix + id }

// Save stores res and publishes its summary in one MULTI/EXEC.
func (p *Publisher) Save(ctx context.Context, label string, res *eval.EvalResult) error {
	id := uuid.NewString()
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	msg, err := json.Marshal(Notification{
		RunID:     id,
		Label:     label,
		Key:       RunKey(id),
		CreatedAt: time.Now().UTC(),
		Summary:   res.Summary,
	})
	if err != nil {
		return fmt.Errorf("marshaling notification: %w", err)
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, RunKey(id), data, p.ttl)
		pipe.Publish(ctx, p.channel, msg)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publishing run %s: %w", id, err)
	}
	return nil
}

// Get reads a stored result back by run id.
func (p *Publisher) Get(ctx context.Context, id string) (*eval.EvalResult, error) {
	data, err := p.client.Get(ctx, RunKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading run %s: %w", id, err)
	}
	var res eval.EvalResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("parsing run %s: %w", id, err)
	}
	return &res, nil
}

// Subscribe delivers notifications to fn until ctx is done. Messages that
// fail to decode are skipped.
func (p *Publisher) Subscribe(ctx context.Context, fn func(Notification)) error {
	sub := p.client.Subscribe(ctx, p.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", p.channel, err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var n Notification
			if err := json.Unmarshal([]byte(m.Payload), &n); err != nil {
				continue
			}
			fn(n)
		}
	}
}
