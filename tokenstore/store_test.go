// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package tokenstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "tokens.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return map[string]Store{
		"sqlite": db,
		"memory": NewMemory(),
	}
}

func TestStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	key := Key("http://localhost:8080/realms/sam-test", "myclient")
	expiry := time.Unix(1700000000, 0)

	for name, s := range testStores(t) {
		s := s
		t.Run(name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)

			_, err := s.Load(ctx, key)
			assert.Truef(errors.Is(err, ErrNotFound), "wanted \"%s\" but got \"%s\"", ErrNotFound, err)

			require.NoError(s.Save(ctx, Record{Key: key, RefreshToken: "rt-1", IDToken: "id-1", Expiry: expiry}))
			got, err := s.Load(ctx, key)
			require.NoError(err)
			assert.Equal("rt-1", got.RefreshToken)
			assert.Equal("id-1", got.IDToken)
			assert.True(expiry.Equal(got.Expiry))
			assert.False(got.UpdatedAt.IsZero())

			// replace
			require.NoError(s.Save(ctx, Record{Key: key, RefreshToken: "rt-2"}))
			got, err = s.Load(ctx, key)
			require.NoError(err)
			assert.Equal("rt-2", got.RefreshToken)
			assert.Empty(got.IDToken)
			assert.True(got.Expiry.IsZero())

			require.NoError(s.Delete(ctx, key))
			require.NoError(s.Delete(ctx, key))
			_, err = s.Load(ctx, key)
			assert.ErrorIs(err, ErrNotFound)

			err = s.Save(ctx, Record{RefreshToken: "rt"})
			assert.ErrorIs(err, ErrInvalidParameter)
		})
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()
	t.Run("empty-path", func(t *testing.T) {
		assert := assert.New(t)
		_, err := Open("")
		assert.ErrorIs(err, ErrInvalidParameter)
	})
	t.Run("reopen-keeps-records", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "tokens.db")
		db, err := Open(path)
		require.NoError(err)
		require.NoError(db.Save(ctx, Record{Key: "k", RefreshToken: "rt"}))
		require.NoError(db.Close())

		fi, err := os.Stat(path)
		require.NoError(err)
		assert.Equal(os.FileMode(0o600), fi.Mode().Perm())

		db, err = Open(path)
		require.NoError(err)
		defer db.Close()
		got, err := db.Load(ctx, "k")
		require.NoError(err)
		assert.Equal("rt", got.RefreshToken)
	})
}
