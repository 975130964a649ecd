package repository

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"mbk-chat-go/internal/model"
	"mbk-chat-go/pkg/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open("sqlite", "file::memory:")
	require.NoError(t, err)
	return db
}

func TestChatRepositoryCreateAndLoad(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(newTestDB(t))

	tree := []byte(`{"nodes":{},"rootId":null,"currentLeafId":null}`)
	rec, err := repo.Save(ctx, SaveParams{Username: "alice", Conversation: tree, Temperature: 0.7})
	require.NoError(t, err)
	assert.Len(t, rec.ID, 36)
	assert.Equal(t, 1, rec.Version)

	loaded, err := repo.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", loaded.Username)
	assert.JSONEq(t, string(tree), string(loaded.Conversation))
	assert.Equal(t, 0.7, loaded.Temperature)
	assert.Equal(t, 1, loaded.Version)
}

func TestChatRepositoryNotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(newTestDB(t))

	_, err := repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrChatNotFound)
	_, err = repo.FindByID(ctx, "")
	assert.ErrorIs(t, err, ErrChatNotFound)

	_, err = repo.Save(ctx, SaveParams{ID: "missing", Username: "alice", Conversation: []byte(`{}`), ExpectedVersion: 1})
	assert.ErrorIs(t, err, ErrChatNotFound)
}

func TestChatRepositoryCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(newTestDB(t))

	rec, err := repo.Save(ctx, SaveParams{Username: "alice", Conversation: []byte(`{"v":1}`), Temperature: 1})
	require.NoError(t, err)

	updated, err := repo.Save(ctx, SaveParams{ID: rec.ID, Username: "alice", Conversation: []byte(`{"v":2}`), Temperature: 1, ExpectedVersion: 1})
	require.NoError(t, err)
	assert.Equal(t, rec.ID, updated.ID)
	assert.Equal(t, 2, updated.Version)

	// a second writer that also loaded version 1 loses
	_, err = repo.Save(ctx, SaveParams{ID: rec.ID, Username: "alice", Conversation: []byte(`{"v":3}`), Temperature: 1, ExpectedVersion: 1})
	assert.ErrorIs(t, err, ErrVersionConflict)

	loaded, err := repo.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(loaded.Conversation))
	assert.Equal(t, 2, loaded.Version)
}

func TestChatRepositoryUpdateRequiresOwner(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(newTestDB(t))

	rec, err := repo.Save(ctx, SaveParams{Username: "alice", Conversation: []byte(`{}`)})
	require.NoError(t, err)

	_, err = repo.Save(ctx, SaveParams{ID: rec.ID, Username: "mallory", Conversation: []byte(`{}`), ExpectedVersion: 1})
	assert.ErrorIs(t, err, ErrChatNotFound)
}

func TestChatRepositoryListAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(newTestDB(t)).(*chatRepository)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		repo.now = func() time.Time { return at }
		rec, err := repo.Save(ctx, SaveParams{Username: "alice", Conversation: []byte(`{}`)})
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}
	_, err := repo.Save(ctx, SaveParams{Username: "bob", Conversation: []byte(`{}`)})
	require.NoError(t, err)

	recs, err := repo.ListByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{recs[0].ID, recs[1].ID, recs[2].ID})

	assert.ErrorIs(t, repo.Delete(ctx, ids[0], "bob"), ErrChatNotFound)
	require.NoError(t, repo.Delete(ctx, ids[0], "alice"))
	_, err = repo.FindByID(ctx, ids[0])
	assert.ErrorIs(t, err, ErrChatNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, ids[0], "alice"), ErrChatNotFound)
}

func TestSettingsRepositoryUpsert(t *testing.T) {
	ctx := context.Background()
	repo := NewSettingsRepository(newTestDB(t))

	_, err := repo.FindByUsername(ctx, "alice")
	assert.ErrorIs(t, err, ErrSettingsNotFound)

	s := model.DefaultUserSettings("alice")
	s.DailyMessageLimit = 25
	require.NoError(t, repo.Upsert(ctx, &s))

	s2 := model.UserSettings{Username: "alice", Theme: "light", FontSize: 18, AIModel: "groq/llama3-8b-8192", Temperature: 0}
	require.NoError(t, repo.Upsert(ctx, &s2))

	got, err := repo.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "light", got.Theme)
	assert.Equal(t, 18, got.FontSize)
	assert.Equal(t, "groq/llama3-8b-8192", got.AIModel)
	assert.Equal(t, 0.0, got.Temperature)
	assert.Equal(t, 25, got.DailyMessageLimit, "updates never touch the daily limit")
}

func TestUsageRepositoryIncrement(t *testing.T) {
	ctx := context.Background()
	repo := NewUsageRepository(newTestDB(t))

	n, err := repo.CountForDay(ctx, "alice", "2026-01-01")
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, repo.Increment(ctx, "alice", "2026-01-01", 1))
	require.NoError(t, repo.Increment(ctx, "alice", "2026-01-01", 1))
	require.NoError(t, repo.Increment(ctx, "alice", "2026-01-02", 1))

	n, err = repo.CountForDay(ctx, "alice", "2026-01-01")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = repo.CountForDay(ctx, "alice", "2026-01-02")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSettingsCacheWithoutRedis(t *testing.T) {
	ctx := context.Background()
	cache := NewSettingsCache(nil)
	s := model.DefaultUserSettings("alice")
	cache.Set(ctx, &s)
	_, ok := cache.Get(ctx, "alice")
	assert.False(t, ok)
	cache.Invalidate(ctx, "alice")
}

func TestSettingsCacheUnreachableRedisIsAMiss(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	defer client.Close()

	cache := NewSettingsCache(client)
	s := model.DefaultUserSettings("alice")
	cache.Set(ctx, &s)
	_, ok := cache.Get(ctx, "alice")
	assert.False(t, ok)
	cache.Invalidate(ctx, "alice")
}
