package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/grimoire-api/internal/domain"
	"github.com/phrazzld/grimoire-api/internal/store"
)

// openTestDB connects to the database named by DATABASE_URL and applies
// migrations. Tests are skipped when the variable is unset so the suite
// stays runnable without infrastructure.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("skipping integration test, DATABASE_URL not set")
	}

	db, err := sql.Open("pgx", url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Ping())
	require.NoError(t, RunMigrations(db))
	return db
}

// insertCard creates a card row and registers cleanup. Jobs, guides and
// mention stats cascade on card deletion.
func insertCard(t *testing.T, db *sql.DB, name string) *domain.Card {
	t.Helper()

	card, err := domain.NewCard(uuid.New(), name)
	require.NoError(t, err)

	require.NoError(t, NewCardStore(db).Upsert(context.Background(), card))
	t.Cleanup(func() {
		_, _ = db.Exec(`DELETE FROM cards WHERE id = $1`, card.ID)
	})
	return card
}

func TestCardStore_Integration(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	cards := NewCardStore(db)

	card := insertCard(t, db, "Lightning Bolt")
	card.OracleText = "Lightning Bolt deals 3 damage to any target."
	card.ImageURL = "https://img.example/bolt.jpg"
	require.NoError(t, cards.Upsert(ctx, card))

	got, err := cards.GetByID(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, card.Name, got.Name)
	assert.Equal(t, card.OracleText, got.OracleText)

	_, err = cards.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrCardNotFound)

	refs, err := cards.ListEntityRefs(ctx)
	require.NoError(t, err)
	var found bool
	for _, ref := range refs {
		if ref.CardID == card.ID {
			found = true
			assert.Equal(t, card.Name, ref.Name)
			assert.Equal(t, card.ImageURL, ref.ImageURL)
		}
	}
	assert.True(t, found, "upserted card missing from entity refs")
}

func TestJobStore_Integration_ClaimCycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	jobs := NewJobStore(db)

	card := insertCard(t, db, "Integration Claim Cycle")
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, jobs.Enqueue(ctx, card.ID, now))
	assert.ErrorIs(t, jobs.Enqueue(ctx, card.ID, now), store.ErrJobAlreadyExists)

	claimed, err := jobs.Claim(ctx, "worker-a", 10*time.Minute, now)
	require.NoError(t, err)
	// Another enqueued card may be claimed first if the table is shared;
	// loop until ours comes up or the backlog drains.
	for claimed.CardID != card.ID {
		claimed, err = jobs.Claim(ctx, "worker-a", 10*time.Minute, now)
		require.NoError(t, err)
	}
	assert.Equal(t, domain.JobStateClaimed, claimed.State)
	assert.Equal(t, 1, claimed.Attempts)

	renewed, err := jobs.Renew(ctx, card.ID, "worker-a", 20*time.Minute, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, renewed.LeaseExpiresAt.After(claimed.LeaseExpiresAt))

	_, err = jobs.Renew(ctx, card.ID, "worker-b", 10*time.Minute, now)
	assert.ErrorIs(t, err, store.ErrNotJobOwner)

	require.NoError(t, jobs.MarkDone(ctx, card.ID, "worker-a", now.Add(2*time.Minute)))
	assert.ErrorIs(t, jobs.MarkDone(ctx, card.ID, "worker-a", now), store.ErrJobAlreadyDone)

	done, err := jobs.GetByCardID(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateDone, done.State)
	assert.Empty(t, done.ClaimedBy)
}

func TestJobStore_Integration_FailRouting(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	jobs := NewJobStore(db)

	card := insertCard(t, db, "Integration Fail Routing")
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, jobs.Enqueue(ctx, card.ID, now))

	claimed, err := jobs.Claim(ctx, "worker-a", time.Minute, now)
	require.NoError(t, err)
	for claimed.CardID != card.ID {
		claimed, err = jobs.Claim(ctx, "worker-a", time.Minute, now)
		require.NoError(t, err)
	}

	failed, err := jobs.Fail(ctx, card.ID, "worker-a", "backend timeout", false, 3, now)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatePending, failed.State)
	assert.Equal(t, "backend timeout", failed.LastError)

	// A permanent failure is terminal regardless of attempts.
	claimed, err = jobs.Claim(ctx, "worker-a", time.Minute, now)
	require.NoError(t, err)
	for claimed.CardID != card.ID {
		claimed, err = jobs.Claim(ctx, "worker-a", time.Minute, now)
		require.NoError(t, err)
	}
	failed, err = jobs.Fail(ctx, card.ID, "worker-a", "content blocked", true, 3, now)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateFailed, failed.State)

	// Enqueue revives a failed job in place.
	require.NoError(t, jobs.Enqueue(ctx, card.ID, now.Add(time.Minute)))
	revived, err := jobs.GetByCardID(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatePending, revived.State)
	assert.Zero(t, revived.Attempts)
}

func TestGuideStore_Integration(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	guides := NewGuideStore(db)

	card := insertCard(t, db, "Integration Guide")

	guide, err := domain.NewGuide(card.ID, "A thorough guide to this card.", "test-model", "en")
	require.NoError(t, err)
	require.NoError(t, guides.Upsert(ctx, guide))

	got, err := guides.GetByCardID(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, guide.Content, got.Content)
	assert.Equal(t, guide.ModelName, got.ModelName)
	assert.Equal(t, guide.WordCount, got.WordCount)

	_, err = guides.GetByCardID(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrGuideNotFound)
}

func TestMentionStatsStore_Integration(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	stats := NewMentionStatsStore(db)

	source := insertCard(t, db, "Integration Mention Source")
	target := insertCard(t, db, "Integration Mention Target")
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, stats.RecordMentions(ctx, source.ID, []uuid.UUID{target.ID}, now))
	require.NoError(t, stats.RecordMentions(ctx, source.ID, []uuid.UUID{target.ID}, now.Add(time.Minute)))

	stat, err := stats.GetByCardID(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stat.MentionCount)
	assert.True(t, stat.LastMentionedAt.After(stat.FirstMentionedAt))

	_, err = stats.GetByCardID(ctx, source.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
