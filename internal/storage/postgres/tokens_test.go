package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/matchlink/internal/client"
	"github.com/cory-johannsen/matchlink/internal/storage/postgres"
	"github.com/cory-johannsen/matchlink/internal/testutil"
)

var _ client.TokenStore = (*postgres.TokenRepository)(nil)

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

func setupTokens(t *testing.T) (*testutil.PostgresContainer, *postgres.TokenRepository) {
	t.Helper()
	pc := testutil.NewPostgresContainer(t)
	pc.ApplyMigrations(t)
	return pc, postgres.NewTokenRepository(pc.DB())
}

func TestTokenRepository(t *testing.T) {
	pc, repo := setupTokens(t)
	ctx := context.Background()

	t.Run("missing token", func(t *testing.T) {
		_, ok, err := repo.LoadToken(ctx, uniqueName("user"), "room")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("save load delete", func(t *testing.T) {
		user := uniqueName("user")
		require.NoError(t, repo.SaveToken(ctx, user, "r1", "7"))
		token, ok, err := repo.LoadToken(ctx, user, "r1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "7", token)

		require.NoError(t, repo.SaveToken(ctx, user, "r1", "9"))
		token, _, err = repo.LoadToken(ctx, user, "r1")
		require.NoError(t, err)
		assert.Equal(t, "9", token)

		require.NoError(t, repo.DeleteToken(ctx, user, "r1"))
		_, ok, err = repo.LoadToken(ctx, user, "r1")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, repo.DeleteToken(ctx, user, "r1"))
	})

	t.Run("keys are per user and room", func(t *testing.T) {
		user := uniqueName("user")
		require.NoError(t, repo.SaveToken(ctx, user, "a", "1"))
		require.NoError(t, repo.SaveToken(ctx, user, "b", "2"))
		require.NoError(t, repo.SaveToken(ctx, uniqueName("other"), "a", "3"))
		token, _, err := repo.LoadToken(ctx, user, "a")
		require.NoError(t, err)
		assert.Equal(t, "1", token)
	})

	t.Run("matches the memory store", func(t *testing.T) {
		rapid.Check(t, func(rt *rapid.T) {
			user := uniqueName("prop")
			mem := client.NewMemoryTokenStore()
			rooms := []string{"a", "b", "c"}
			for i := 0; i < 10; i++ {
				room := rapid.SampledFrom(rooms).Draw(rt, "room")
				if rapid.Bool().Draw(rt, "save") {
					token := rapid.StringMatching(`[1-9][0-9]{0,3}`).Draw(rt, "token")
					require.NoError(rt, repo.SaveToken(ctx, user, room, token))
					require.NoError(rt, mem.SaveToken(ctx, user, room, token))
				} else {
					require.NoError(rt, repo.DeleteToken(ctx, user, room))
					require.NoError(rt, mem.DeleteToken(ctx, user, room))
				}
			}
			for _, room := range rooms {
				want, wantOK, _ := mem.LoadToken(ctx, user, room)
				got, gotOK, err := repo.LoadToken(ctx, user, room)
				require.NoError(rt, err)
				require.Equal(rt, wantOK, gotOK)
				require.Equal(rt, want, got)
			}
		})
	})

	t.Run("health", func(t *testing.T) {
		assert.NoError(t, pc.Pool.Health(ctx, time.Second))
	})
}

func TestMigrate_NoChange(t *testing.T) {
	pc := testutil.NewPostgresContainer(t)
	first, err := postgres.Migrate(pc.DSN(), testutil.MigrationsDir(), 0)
	require.NoError(t, err)
	assert.True(t, first.Changed)
	assert.Equal(t, uint(1), first.Version)

	again, err := postgres.Migrate(pc.DSN(), testutil.MigrationsDir(), 0)
	require.NoError(t, err)
	assert.False(t, again.Changed)
	assert.False(t, again.Dirty)

	down, err := postgres.Migrate(pc.DSN(), testutil.MigrationsDir(), -1)
	require.NoError(t, err)
	assert.True(t, down.Changed)
	assert.Equal(t, uint(0), down.Version)

	_, err = postgres.Migrate(pc.DSN(), testutil.MigrationsDir(), 0)
	require.NoError(t, err)
	rolled, err := postgres.Rollback(pc.DSN(), testutil.MigrationsDir())
	require.NoError(t, err)
	assert.True(t, rolled.Changed)
	assert.Equal(t, uint(0), rolled.Version)
}
