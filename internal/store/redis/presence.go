package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vovakirdan/awayrelay/internal/store"
)

const presenceKeyPrefix = "presence:"

// presenceRecord is the JSON value stored under presence:<username>.
type presenceRecord struct {
	Username  string               `json:"username"`
	Status    store.PresenceStatus `json:"status"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// PresenceStore keeps presence in Redis. Keys have no TTL: presence changes
// only on connect and disconnect.
type PresenceStore struct {
	client *redis.Client
}

var _ store.PresenceStore = (*PresenceStore)(nil)

// NewClient parses redisURL and pings the server.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewPresenceStore wraps a connected client.
func NewPresenceStore(client *redis.Client) *PresenceStore {
	return &PresenceStore{client: client}
}

// SetStatus writes the presence of a user.
func (p *PresenceStore) SetStatus(ctx context.Context, username string, status store.PresenceStatus) error {
	data, err := json.Marshal(presenceRecord{
		Username:  username,
		Status:    status,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal presence: %w", err)
	}
	if err := p.client.Set(ctx, presenceKey(username), data, 0).Err(); err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	return nil
}

// Status reads the presence of a user. A user without a presence key is unknown.
func (p *PresenceStore) Status(ctx context.Context, username string) (store.PresenceStatus, error) {
	data, err := p.client.Get(ctx, presenceKey(username)).Result()
	if errors.Is(err, redis.Nil) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get presence: %w", err)
	}

	var rec presenceRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return "", fmt.Errorf("unmarshal presence: %w", err)
	}
	return rec.Status, nil
}

// Statuses reads presence for many users in one round trip.
func (p *PresenceStore) Statuses(ctx context.Context, usernames []string) (map[string]store.PresenceStatus, error) {
	result := make(map[string]store.PresenceStatus, len(usernames))
	if len(usernames) == 0 {
		return result, nil
	}

	keys := make([]string, len(usernames))
	for i, name := range usernames {
		keys[i] = presenceKey(name)
	}

	values, err := p.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("get bulk presence: %w", err)
	}

	for i, value := range values {
		name := usernames[i]
		result[name] = store.StatusBusy

		data, ok := value.(string)
		if !ok {
			continue
		}
		var rec presenceRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			continue
		}
		result[name] = rec.Status
	}
	return result, nil
}

// ResetStatuses marks every stored presence busy.
func (p *PresenceStore) ResetStatuses(ctx context.Context) error {
	iter := p.client.Scan(ctx, 0, presenceKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		username := iter.Val()[len(presenceKeyPrefix):]
		if err := p.SetStatus(ctx, username, store.StatusBusy); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan presence: %w", err)
	}
	return nil
}

func presenceKey(username string) string {
	return presenceKeyPrefix + username
}
