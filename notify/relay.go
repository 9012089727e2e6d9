package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConn is the part of *redis.Client which the RedisRelay uses.
type RedisConn interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// RedisRelay is a Pusher which publishes messages on a redis channel. Listen forwards them to a local Pusher.
// It connects worker processes, which handle the events, to the serve processes, which hold the websockets.
type RedisRelay struct {
	Conn    RedisConn
	Channel string
	Logger  *zap.Logger
}

type relayed struct {
	UserID  int     `json:"user"`
	Message Message `json:"message"`
}

func (r *RedisRelay) Push(ctx context.Context, userID int, m Message) error {
	data, err := json.Marshal(relayed{UserID: userID, Message: m})
	if err != nil {
		return err
	}
	if err := r.Conn.Publish(ctx, r.Channel, data).Err(); err != nil {
		return fmt.Errorf("publish on %s: %w", r.Channel, err)
	}
	return nil
}

// Listen subscribes to the channel and pushes every message to target until ctx is done.
func (r *RedisRelay) Listen(ctx context.Context, target Pusher) error {
	var sub = r.Conn.Subscribe(ctx, r.Channel)
	defer sub.Close()

	// wait for the confirmation, so no message published after Listen has begun is missed
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", r.Channel, err)
	}

	var ch = sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(ctx, target, msg.Payload)
		}
	}
}

func (r *RedisRelay) handle(ctx context.Context, target Pusher, payload string) {
	var rel relayed
	if err := json.Unmarshal([]byte(payload), &rel); err != nil {
		r.logger().Warn("malformed relayed message", zap.Error(err))
		return
	}
	if err := target.Push(ctx, rel.UserID, rel.Message); err != nil {
		r.logger().Warn("pushing relayed message", zap.Int("user", rel.UserID), zap.Error(err))
	}
}

func (r *RedisRelay) logger() *zap.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return zap.NewNop()
}
