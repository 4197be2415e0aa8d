package journal

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"farmstake/core/events"
	"farmstake/core/types"
)

type rawEvent struct{ evt *types.Event }

func (r rawEvent) EventType() string    { return r.evt.Type }
func (r rawEvent) Event() *types.Event { return r.evt }

func setupJournal(t *testing.T) *Journal {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	j, err := New(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func emit(feed *events.Feed, kind, pool, account string) {
	feed.Emit(rawEvent{evt: &types.Event{Type: kind, Attributes: map[string]string{
		"pool":    pool,
		"account": account,
		"amount":  "10",
	}}})
}

func TestJournalStoresFeedRecords(t *testing.T) {
	j := setupJournal(t)
	feed := events.NewFeed(8)
	feed.SetNowFunc(func() time.Time { return time.Unix(1_700_000_000, 0) })
	var failures []error
	feed.AddSink(j, func(_ events.Record, err error) { failures = append(failures, err) })

	emit(feed, "staking.staked", "1", "0xaa")
	emit(feed, "staking.staked", "2", "0xbb")
	emit(feed, "staking.unstaked", "1", "0xaa")
	require.Empty(t, failures)

	ctx := context.Background()
	all, err := j.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	live := feed.Since(0, "", 0)
	for i := range all {
		require.Equal(t, live[i].ID, all[i].ID)
		require.Equal(t, live[i].Sequence, all[i].Sequence)
		require.Equal(t, "10", all[i].Attributes["amount"])
		require.True(t, all[i].Time.Equal(time.Unix(1_700_000_000, 0)))
	}

	byPool, err := j.Query(ctx, Filter{Pool: "1"})
	require.NoError(t, err)
	require.Len(t, byPool, 2)

	byType, err := j.Query(ctx, Filter{Type: "staking.unstaked"})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	require.Equal(t, uint64(3), byType[0].Sequence)

	byAccount, err := j.Query(ctx, Filter{Account: "0xBB"})
	require.NoError(t, err)
	require.Len(t, byAccount, 1)

	page, err := j.Query(ctx, Filter{After: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, uint64(2), page[0].Sequence)
}

func TestJournalLastSequenceResumesFeed(t *testing.T) {
	j := setupJournal(t)
	ctx := context.Background()

	last, err := j.LastSequence(ctx)
	require.NoError(t, err)
	require.Zero(t, last)

	first := events.NewFeed(4)
	first.AddSink(j, nil)
	emit(first, "staking.staked", "1", "0xaa")
	emit(first, "staking.staked", "1", "0xaa")

	last, err = j.LastSequence(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), last)

	restarted := events.NewFeed(4)
	restarted.Resume(last)
	var failures []error
	restarted.AddSink(j, func(_ events.Record, err error) { failures = append(failures, err) })
	emit(restarted, "staking.exited", "1", "0xaa")
	require.Empty(t, failures)

	all, err := j.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, uint64(3), all[2].Sequence)
}

func TestJournalRejectsDuplicateSequence(t *testing.T) {
	j := setupJournal(t)
	rec := events.Record{ID: uuid.NewString(), Sequence: 5, Type: "staking.staked", Time: time.Now()}
	require.NoError(t, j.Store(rec))
	rec.ID = uuid.NewString()
	require.Error(t, j.Store(rec))
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}
