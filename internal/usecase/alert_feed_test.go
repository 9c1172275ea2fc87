package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChainSignal/internal/domain/models"
	domrepo "ChainSignal/internal/domain/repository"
	"ChainSignal/internal/repository"
)

func mkAlert(i int, at time.Time) models.Alert {
	return models.Alert{
		ID:        fmt.Sprintf("a%d", i),
		Timestamp: at,
		Severity:  models.SeverityInfo,
		Category:  models.CategoryLargeOutflow,
		Title:     "t",
		Message:   "m",
	}
}

func TestAlertFeed_CapAndOrder(t *testing.T) {
	c := &clock{t: ruleNow}
	store := repository.NewMemoryListStore()
	f := NewAlertFeed(store, 3, WithFeedClock(c.Now))

	for i := 0; i < 5; i++ {
		f.Add(context.Background(), mkAlert(i, c.Now()))
	}
	got := f.List(0, false)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a4", "a3", "a2"}, []string{got[0].ID, got[1].ID, got[2].ID})

	restored := NewAlertFeed(store, 3)
	require.NoError(t, restored.Restore(context.Background()))
	assert.Equal(t, got, restored.List(0, false))
}

func TestAlertFeed_ReadState(t *testing.T) {
	f := NewAlertFeed(repository.NewMemoryListStore(), 0)
	f.Add(context.Background(), mkAlert(1, ruleNow), mkAlert(2, ruleNow))
	assert.Equal(t, 2, f.UnreadCount())

	require.NoError(t, f.MarkRead(context.Background(), "a1"))
	assert.Equal(t, 1, f.UnreadCount())
	assert.Len(t, f.List(0, true), 1)
	assert.ErrorIs(t, f.MarkRead(context.Background(), "missing"), models.ErrAlertNotFound)

	assert.Equal(t, 1, f.MarkAllRead(context.Background()))
	assert.Equal(t, 0, f.UnreadCount())

	f.ClearAll(context.Background())
	assert.Empty(t, f.List(0, false))
	stored, err := domrepo.LoadRecords[models.Alert](context.Background(), f.store, domrepo.KeyAlerts)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestAlertFeed_ToastsExpire(t *testing.T) {
	c := &clock{t: ruleNow}
	f := NewAlertFeed(repository.NewMemoryListStore(), 0, WithFeedClock(c.Now))

	for i := 0; i < 7; i++ {
		f.Add(context.Background(), mkAlert(i, c.Now()))
		c.Advance(500 * time.Millisecond)
	}
	toasts := f.Toasts()
	require.Len(t, toasts, DefaultToastMax)
	assert.Equal(t, "a6", toasts[0].Alert.ID)

	// a2 was raised at +1s and expires at +6s
	c.t = ruleNow.Add(6 * time.Second)
	toasts = f.Toasts()
	require.Len(t, toasts, 4)
	assert.Equal(t, "a3", toasts[len(toasts)-1].Alert.ID)

	c.Advance(time.Hour)
	assert.Empty(t, f.Toasts())
	assert.Len(t, f.List(0, false), 7)
}

func TestAlertFeed_ToastTTLStartsAtAdd(t *testing.T) {
	c := &clock{t: ruleNow.Add(6 * time.Second)}
	f := NewAlertFeed(repository.NewMemoryListStore(), 0, WithFeedClock(c.Now))

	// raised by a pass that started 6s before the feed saw it
	a := mkAlert(1, ruleNow)
	a.Severity = models.SeverityCritical
	f.Add(context.Background(), a)

	toasts := f.Toasts()
	require.Len(t, toasts, 1)
	assert.Equal(t, c.Now().Add(DefaultToastTTL), toasts[0].ExpiresAt)

	c.Advance(DefaultToastTTL - time.Millisecond)
	assert.Len(t, f.Toasts(), 1)
	c.Advance(time.Millisecond)
	assert.Empty(t, f.Toasts())
}

func TestAlertFeed_SubscribersAndCount(t *testing.T) {
	f := NewAlertFeed(repository.NewMemoryListStore(), 0)
	ch, cancel := f.Subscribe()
	defer cancel()

	f.Add(context.Background(), mkAlert(1, ruleNow.Add(-2*time.Hour)), mkAlert(2, ruleNow))
	assert.Equal(t, "a1", (<-ch).ID)
	assert.Equal(t, "a2", (<-ch).ID)

	assert.Equal(t, 1, f.CountSince(ruleNow.Add(-time.Hour)))
}

type recordingPublisher struct {
	got chan models.Alert
}

func (p *recordingPublisher) PublishAlert(_ context.Context, a models.Alert) error {
	p.got <- a
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func TestAlertFeed_Forward(t *testing.T) {
	f := NewAlertFeed(repository.NewMemoryListStore(), 0)
	pub := &recordingPublisher{got: make(chan models.Alert, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Forward(ctx, pub)

	f.Add(context.Background(), mkAlert(9, ruleNow))
	select {
	case a := <-pub.got:
		assert.Equal(t, "a9", a.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("alert was not forwarded")
	}
}
