package validator_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spacemeshos/noncemine/shared"
	"github.com/spacemeshos/noncemine/validator"
)

func TestStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "commitments")

	store, err := validator.OpenStore(dbPath, 2)
	require.NoError(t, err)

	_, err = store.Latest(ctx)
	require.ErrorIs(t, err, validator.ErrNotFound)
	_, err = store.Get(ctx, 1)
	require.ErrorIs(t, err, validator.ErrNotFound)

	for _, id := range []uint64{3, 1, 300, 2} {
		require.NoError(t, store.Save(ctx, validator.Commitment{RoundID: id, Secret: shared.Candidate(id % 11), Target: shared.DigestOf(shared.Candidate(id % 11))}))
	}
	found := validator.Commitment{RoundID: 300, Secret: 3, Target: shared.DigestOf(3), Found: true}
	require.NoError(t, store.Save(ctx, found))

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	require.Equal(t, found, latest)

	c, err := store.Get(ctx, 2)
	require.NoError(t, err)
	require.EqualValues(t, 2, c.Secret)
	require.Equal(t, shared.DigestOf(2), c.Target)
	require.False(t, c.Found)
	require.NoError(t, store.Close())

	// reopen, data survives and is read from disk
	store, err = validator.OpenStore(dbPath, 0)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	latest, err = store.Latest(ctx)
	require.NoError(t, err)
	require.Equal(t, found, latest)

	c, err = store.Get(ctx, 3)
	require.NoError(t, err)
	require.EqualValues(t, 3, c.RoundID)
	require.Equal(t, shared.DigestOf(3), c.Target)
}
