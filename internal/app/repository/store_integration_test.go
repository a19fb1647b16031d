package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"github.com/sifan077/clicklink/internal/app/model"
	infraPostgres "github.com/sifan077/clicklink/internal/infra/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
)

func skipIntegration(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
}

func startPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	skipIntegration(t)
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("clicklink"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := infraPostgres.OpenGorm(postgres.Open(dsn), nil)
	require.NoError(t, err)
	require.NoError(t, infraPostgres.AutoMigrate(ctx, db, &model.Link{}))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return NewPostgresStore(db, pool)
}

func startRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	skipIntegration(t)
	ctx := context.Background()

	container, err := tcredis.Run(ctx,
		"redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)

	rdb := redis.NewClient(opts)
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedisStore(rdb)
}

// exerciseStore runs the same contract checks against any backend.
func exerciseStore(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("conditional put is exclusive under contention", func(t *testing.T) {
		const writers = 16
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins []string
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				url := fmt.Sprintf("https://example.com/%d", i)
				ok, err := store.ConditionalPut(ctx, &model.Link{Code: "race01", URL: url, CreatedAt: 10})
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					wins = append(wins, url)
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		require.Len(t, wins, 1)
		link, err := store.Get(ctx, "race01")
		require.NoError(t, err)
		assert.Equal(t, wins[0], link.URL)
	})

	t.Run("increment is atomic and never creates rows", func(t *testing.T) {
		ok, err := store.ConditionalPut(ctx, &model.Link{Code: "count1", URL: "https://example.com/c", CreatedAt: 20})
		require.NoError(t, err)
		require.True(t, ok)

		var wg sync.WaitGroup
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Increment(ctx, "count1", model.FieldVisitCount, 1)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		link, err := store.Get(ctx, "count1")
		require.NoError(t, err)
		assert.Equal(t, int64(25), link.VisitCount)

		_, err = store.Increment(ctx, "ghost1", model.FieldVisitCount, 1)
		assert.ErrorIs(t, err, ErrLinkNotFound)
		_, err = store.Get(ctx, "ghost1")
		assert.ErrorIs(t, err, ErrLinkNotFound)
	})

	t.Run("reporting", func(t *testing.T) {
		top, err := store.Top(ctx, 1)
		require.NoError(t, err)
		require.Len(t, top, 1)
		assert.Equal(t, "count1", top[0].Code)

		recent, err := store.Recent(ctx, 10)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, "count1", recent[0].Code)

		summary, err := store.Summary(ctx)
		require.NoError(t, err)
		assert.Equal(t, model.Summary{TotalLinks: 2, TotalVisits: 25}, summary)

		// Both links were created within the first minute of the epoch.
		hourly, err := store.HourlyCreated(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), hourly[0])
		assert.Equal(t, int64(2), lo.Sum(hourly[:]))
	})
}

func TestPostgresStore_Integration(t *testing.T) {
	exerciseStore(t, startPostgresStore(t))
}

func TestRedisStore_Integration(t *testing.T) {
	exerciseStore(t, startRedisStore(t))
}

func TestMemoryStore_Contract(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}
