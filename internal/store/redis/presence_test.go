package redis

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vovakirdan/awayrelay/internal/store"
)

// getTestRedisClient connects to REDIS_URL or skips the test.
func getTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	client, err := NewClient(context.Background(), url)
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func uniqueUser(t *testing.T, client *redis.Client) string {
	t.Helper()

	name := "test-" + uuid.NewString()
	t.Cleanup(func() { client.Del(context.Background(), presenceKey(name)) })
	return name
}

func TestPresenceStore_SetAndGet(t *testing.T) {
	client := getTestRedisClient(t)
	repo := NewPresenceStore(client)
	ctx := context.Background()

	alice := uniqueUser(t, client)

	_, err := repo.Status(ctx, alice)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, repo.SetStatus(ctx, alice, store.StatusAvailable))
	status, err := repo.Status(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, store.StatusAvailable, status)

	require.NoError(t, repo.SetStatus(ctx, alice, store.StatusBusy))
	status, err = repo.Status(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, store.StatusBusy, status)
}

func TestPresenceStore_BulkAndReset(t *testing.T) {
	client := getTestRedisClient(t)
	repo := NewPresenceStore(client)
	ctx := context.Background()

	alice := uniqueUser(t, client)
	bob := uniqueUser(t, client)
	ghost := "ghost-" + uuid.NewString()

	require.NoError(t, repo.SetStatus(ctx, alice, store.StatusAvailable))
	require.NoError(t, repo.SetStatus(ctx, bob, store.StatusBusy))

	statuses, err := repo.Statuses(ctx, []string{alice, bob, ghost})
	require.NoError(t, err)
	assert.Equal(t, store.StatusAvailable, statuses[alice])
	assert.Equal(t, store.StatusBusy, statuses[bob])
	assert.Equal(t, store.StatusBusy, statuses[ghost], "missing key should read as busy")

	require.NoError(t, repo.ResetStatuses(ctx))
	status, err := repo.Status(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, store.StatusBusy, status)
}
