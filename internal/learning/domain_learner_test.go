package learning

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/netwatch/internal/store"
)

func setupLearnerTestDB(t *testing.T) *store.LearningStore {
	t.Helper()
	dbPath := t.TempDir() + "/test.db"

	db, err := store.Open(arbor.NewLogger(), store.DefaultStoreConfig(dbPath))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return store.NewLearningStore(db)
}

func TestSharedTLD(t *testing.T) {
	assert.Equal(t, "com", sharedTLD("example.com"))
	assert.Equal(t, "uk", sharedTLD("example.co.uk"))
	assert.Equal(t, "", sharedTLD("localhost"))
	assert.Equal(t, "", sharedTLD("trailing."))
}

func TestDomainLearner_ColdStart_FallsBackToSharedTLDWhenNoSimilarityRows(t *testing.T) {
	learningStore := setupLearnerTestDB(t)
	ctx := context.Background()

	// peer.com has rich history but no curated domain_similarity row links
	// it to new.com; the only thing they share is the "com" TLD.
	for i := 0; i < 10; i++ {
		require.NoError(t, learningStore.UpsertArm(ctx, "peer.com", "headless:shell", true))
	}
	for i := 0; i < 4; i++ {
		require.NoError(t, learningStore.UpsertArm(ctx, "peer.com", "headless:shell", false))
	}

	learner := NewDomainLearner(learningStore, arbor.NewLogger(), rand.New(rand.NewSource(1)))

	_, err := learner.Select(ctx, "new.com")
	require.NoError(t, err)

	arms, err := learningStore.ArmsForDomain(ctx, "new.com")
	require.NoError(t, err)

	found := false
	for _, a := range arms {
		if a.ConfigKey == "headless:shell" {
			found = true
			assert.Equal(t, 5, a.SuccessCount, "half of peer.com's 10 successes should transfer")
			assert.Equal(t, 2, a.FailureCount, "half of peer.com's 4 failures should transfer")
		}
	}
	assert.True(t, found, "expected headless:shell arm counts transferred from the same-TLD peer")
}
