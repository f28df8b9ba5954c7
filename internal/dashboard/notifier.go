package dashboard

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	snapshotVersionKey = "dashboard:snapshot:version"
	snapshotChannel    = "dashboard.snapshot"
)

// Notifier tracks the snapshot version in Redis and announces new snapshots.
// A Notifier without a client reports version 0 and ignores bumps.
type Notifier struct {
	client *redis.Client
}

// NewNotifier instantiates the notifier helper.
func NewNotifier(client *redis.Client) *Notifier {
	return &Notifier{client: client}
}

// Version returns the current snapshot version, initialising when missing.
func (n *Notifier) Version(ctx context.Context) (int64, error) {
	if n == nil || n.client == nil {
		return 0, nil
	}
	ver, err := n.client.Get(ctx, snapshotVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := n.client.SetNX(ctx, snapshotVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return n.client.Get(ctx, snapshotVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := n.client.Set(ctx, snapshotVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// Bump increments the snapshot version and publishes it.
func (n *Notifier) Bump(ctx context.Context) (int64, error) {
	if n == nil || n.client == nil {
		return 0, nil
	}
	ver, err := n.client.Incr(ctx, snapshotVersionKey).Result()
	if err != nil {
		return 0, err
	}
	if err := n.client.Publish(ctx, snapshotChannel, strconv.FormatInt(ver, 10)).Err(); err != nil {
		return ver, err
	}
	return ver, nil
}

// Listen subscribes to snapshot announcements and calls fn with each published
// version until ctx is done. Malformed payloads are skipped.
func (n *Notifier) Listen(ctx context.Context, fn func(version int64)) error {
	if n == nil || n.client == nil || fn == nil {
		return nil
	}
	pubsub := n.client.Subscribe(ctx, snapshotChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ver, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					continue
				}
				fn(ver)
			}
		}
	}()
	return nil
}
