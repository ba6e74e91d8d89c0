// internal/kv/kv_test.go
package kv

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/sendlater/internal/config"
	"go.uber.org/zap"
)

// exerciseStore runs the contract every backend must satisfy.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "scheduledMessages")
	require.NoError(t, err)
	assert.False(t, ok, "absent keys report ok=false without an error")

	require.NoError(t, s.Set(ctx, "scheduledMessages", []byte(`[{"id":"1"}]`)))
	v, ok, err := s.Get(ctx, "scheduledMessages")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `[{"id":"1"}]`, string(v))

	require.NoError(t, s.Set(ctx, "scheduledMessages", []byte(`[]`)), "last writer wins")
	v, _, err = s.Get(ctx, "scheduledMessages")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(v))
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	exerciseStore(t, m)

	require.NoError(t, m.Close())
	_, _, err := m.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Set(context.Background(), "k", nil), ErrClosed)
}

func TestMemory_CopiesValues(t *testing.T) {
	m := NewMemory()
	buf := []byte("abc")
	require.NoError(t, m.Set(context.Background(), "k", buf))
	buf[0] = 'x'
	v, _, err := m.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(v))
}

func TestSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "sendlater.db")
	s, err := OpenSQLite(context.Background(), path, zap.NewNop())
	require.NoError(t, err)
	exerciseStore(t, s)
	require.NoError(t, s.Close())

	// Values survive reopening the file.
	s, err = OpenSQLite(context.Background(), path, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()
	v, ok, err := s.Get(context.Background(), "scheduledMessages")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[]", string(v))
}

func TestSQLite_EmptyPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), "", nil)
	assert.Error(t, err)
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s, err := NewRedis(context.Background(), client, "sendlater:", zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)
	raw, err := mr.Get("sendlater:scheduledMessages")
	require.NoError(t, err)
	assert.Equal(t, "[]", raw, "keys carry the configured prefix")
}

func TestRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	client := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
	_, err := NewRedis(context.Background(), client, "", nil)
	assert.Error(t, err)
	_ = client.Close()
}

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func TestPostgres(t *testing.T) {
	ctx := context.Background()

	t.Run("ping failure", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectPing().WillReturnError(errors.New("connection refused"))
		_, err = NewPostgres(ctx, mock, "", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to ping database")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get and set", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectPing()
		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "sendlater_kv"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
		s, err := NewPostgres(ctx, mock, "sendlater_kv", zap.NewNop())
		require.NoError(t, err)

		mock.ExpectQuery(flexibleSQLMatcher(`SELECT value FROM "sendlater_kv" WHERE key = $1`)).
			WithArgs("scheduledMessages").
			WillReturnError(pgx.ErrNoRows)
		_, ok, err := s.Get(ctx, "scheduledMessages")
		require.NoError(t, err)
		assert.False(t, ok)

		mock.ExpectExec(`INSERT INTO "sendlater_kv"`).
			WithArgs("scheduledMessages", []byte(`[]`)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		require.NoError(t, s.Set(ctx, "scheduledMessages", []byte(`[]`)))

		mock.ExpectQuery(flexibleSQLMatcher(`SELECT value FROM "sendlater_kv" WHERE key = $1`)).
			WithArgs("scheduledMessages").
			WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow([]byte(`[]`)))
		v, ok, err := s.Get(ctx, "scheduledMessages")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "[]", string(v))

		mock.ExpectExec(`INSERT INTO "sendlater_kv"`).WillReturnError(errors.New("disk full"))
		err = s.Set(ctx, "scheduledMessages", []byte(`[]`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.StoreConfig{Driver: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(ctx, config.StoreConfig{Driver: "sqlite", SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "kv.db")}}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, s)
	require.NoError(t, s.Close())

	mr := miniredis.RunT(t)
	s, err = Open(ctx, config.StoreConfig{Driver: "redis", Redis: config.RedisConfig{Addr: mr.Addr()}}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Redis{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, config.StoreConfig{Driver: "etcd"}, nil)
	assert.Error(t, err)
}
