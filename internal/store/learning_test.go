package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func setupLearningTestDB(t *testing.T) *LearningStore {
	t.Helper()
	dbPath := t.TempDir() + "/test.db"

	db, err := Open(arbor.NewLogger(), DefaultStoreConfig(dbPath))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewLearningStore(db)
}

func TestLearningStore_DomainsSharingTLD_ExcludesSelfAndOtherTLDs(t *testing.T) {
	learningStore := setupLearningTestDB(t)
	ctx := context.Background()

	require.NoError(t, learningStore.UpsertArm(ctx, "example.com", "headless:shell", true))
	require.NoError(t, learningStore.UpsertArm(ctx, "other.com", "headless:shell", true))
	require.NoError(t, learningStore.UpsertArm(ctx, "another.com", "headless:shell", false))
	require.NoError(t, learningStore.UpsertArm(ctx, "elsewhere.org", "headless:shell", true))

	peers, err := learningStore.DomainsSharingTLD(ctx, "example.com", "com", 5)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"another.com", "other.com"}, peers)
}

func TestLearningStore_DomainsSharingTLD_RespectsLimit(t *testing.T) {
	learningStore := setupLearningTestDB(t)
	ctx := context.Background()

	for _, d := range []string{"a.com", "b.com", "c.com"} {
		require.NoError(t, learningStore.UpsertArm(ctx, d, "headless:shell", true))
	}

	peers, err := learningStore.DomainsSharingTLD(ctx, "z.com", "com", 2)
	require.NoError(t, err)
	assert.Len(t, peers, 2)
}
