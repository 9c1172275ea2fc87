package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ChainSignal/internal/domain/models"
	domrepo "ChainSignal/internal/domain/repository"
	"ChainSignal/pkg/capped"
	"ChainSignal/pkg/logger"
)

const (
	DefaultAlertCap  = 200
	DefaultToastMax  = 5
	DefaultToastTTL  = 5 * time.Second
	subscriberBuffer = 32
)

// Toast is a transient view of a fresh alert.
type Toast struct {
	Alert     models.Alert `json:"alert"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// AlertFeed owns the persisted alert list, the toast view and the live
// subscribers.
type AlertFeed struct {
	store   domrepo.ListStore
	log     *logger.Logger
	metrics domrepo.Metrics
	now     func() time.Time
	cap     int
	ttl     time.Duration

	list   *capped.List[models.Alert]
	toasts *capped.List[Toast]

	subMu  sync.RWMutex
	subs   map[int]chan models.Alert
	nextID int
}

type AlertFeedOption func(*AlertFeed)

func WithFeedLogger(l *logger.Logger) AlertFeedOption { return func(f *AlertFeed) { f.log = l } }

func WithFeedMetrics(m domrepo.Metrics) AlertFeedOption {
	return func(f *AlertFeed) {
		if m != nil {
			f.metrics = m
		}
	}
}

func WithFeedClock(now func() time.Time) AlertFeedOption { return func(f *AlertFeed) { f.now = now } }

// WithToasts overrides how many toasts are shown and for how long.
func WithToasts(max int, ttl time.Duration) AlertFeedOption {
	return func(f *AlertFeed) {
		if max > 0 {
			f.toasts = capped.New[Toast](max)
		}
		if ttl > 0 {
			f.ttl = ttl
		}
	}
}

func NewAlertFeed(store domrepo.ListStore, capacity int, opts ...AlertFeedOption) *AlertFeed {
	if capacity <= 0 {
		capacity = DefaultAlertCap
	}
	f := &AlertFeed{
		store:   store,
		log:     logger.Nop(),
		metrics: domrepo.NopMetrics{},
		now:     time.Now,
		cap:     capacity,
		ttl:     DefaultToastTTL,
		list:    capped.New[models.Alert](capacity),
		toasts:  capped.New[Toast](DefaultToastMax),
		subs:    make(map[int]chan models.Alert),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Restore loads the persisted alert list. Toasts are never restored.
func (f *AlertFeed) Restore(ctx context.Context) error {
	alerts, err := domrepo.LoadRecords[models.Alert](ctx, f.store, domrepo.KeyAlerts)
	if err != nil {
		return fmt.Errorf("%w: load alerts: %v", models.ErrPersistence, err)
	}
	f.list.Replace(alerts)
	f.log.Info("alerts.restore done", logger.Int("count", f.list.Len()))
	return nil
}

// Add records alerts in the given order (the last one ends up most recent),
// shows them as toasts and fans them out to subscribers. Toasts expire ttl
// after Add, whatever the alert timestamp.
func (f *AlertFeed) Add(ctx context.Context, alerts ...models.Alert) {
	if len(alerts) == 0 {
		return
	}
	shown := f.now()
	for _, a := range alerts {
		f.list.Push(a)
		f.toasts.Push(Toast{Alert: a, ExpiresAt: shown.Add(f.ttl)})
		f.metrics.RecordAlert(string(a.Category), string(a.Severity))
	}
	f.persist(ctx)
	f.broadcast(alerts)
}

// List returns up to limit alerts, most recent first.
func (f *AlertFeed) List(limit int, unreadOnly bool) []models.Alert {
	items := f.list.Items()
	out := make([]models.Alert, 0, len(items))
	for _, a := range items {
		if unreadOnly && a.Read {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func (f *AlertFeed) UnreadCount() int {
	n := 0
	for _, a := range f.list.Items() {
		if !a.Read {
			n++
		}
	}
	return n
}

// CountSince counts alerts raised at or after t.
func (f *AlertFeed) CountSince(t time.Time) int {
	n := 0
	for _, a := range f.list.Items() {
		if !a.Timestamp.Before(t) {
			n++
		}
	}
	return n
}

// MarkRead flags one alert as read.
func (f *AlertFeed) MarkRead(ctx context.Context, id string) error {
	found := false
	changed := f.list.Update(func(a *models.Alert) bool {
		if a.ID != id {
			return false
		}
		found = true
		if a.Read {
			return false
		}
		a.Read = true
		return true
	})
	if !found {
		return fmt.Errorf("%w: %s", models.ErrAlertNotFound, id)
	}
	if changed > 0 {
		f.persist(ctx)
	}
	return nil
}

// MarkAllRead flags every alert as read and returns how many changed.
func (f *AlertFeed) MarkAllRead(ctx context.Context) int {
	changed := f.list.Update(func(a *models.Alert) bool {
		if a.Read {
			return false
		}
		a.Read = true
		return true
	})
	if changed > 0 {
		f.persist(ctx)
	}
	return changed
}

// ClearAll removes every alert.
func (f *AlertFeed) ClearAll(ctx context.Context) {
	f.list.Clear()
	f.persist(ctx)
}

// Toasts returns the unexpired toasts, most recent first.
func (f *AlertFeed) Toasts() []Toast {
	now := f.now()
	var out []Toast
	for _, t := range f.toasts.Items() {
		if now.Before(t.ExpiresAt) {
			out = append(out, t)
		}
	}
	return out
}

// Subscribe returns a channel receiving every new alert and a cancel func. A
// subscriber that falls behind loses alerts rather than blocking the feed.
func (f *AlertFeed) Subscribe() (<-chan models.Alert, func()) {
	ch := make(chan models.Alert, subscriberBuffer)
	f.subMu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	f.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.subMu.Lock()
			delete(f.subs, id)
			f.subMu.Unlock()
			close(ch)
		})
	}
}

func (f *AlertFeed) broadcast(alerts []models.Alert) {
	f.subMu.RLock()
	defer f.subMu.RUnlock()
	for id, ch := range f.subs {
		for _, a := range alerts {
			select {
			case ch <- a:
			default:
				f.log.Warn("alerts.subscriber lagging, alert dropped", logger.Int("subscriber", id), logger.String("alert", a.ID))
			}
		}
	}
}

func (f *AlertFeed) persist(ctx context.Context) {
	if err := domrepo.SaveRecords(ctx, f.store, domrepo.KeyAlerts, f.list.Items(), f.cap); err != nil {
		f.metrics.RecordError("persistence")
		f.log.Warn("alerts.persist failed", logger.Error(fmt.Errorf("%w: %v", models.ErrPersistence, err)))
	}
}

// Forward publishes every new alert to pub until ctx is done. Publish failures
// are logged and the alert is dropped.
func (f *AlertFeed) Forward(ctx context.Context, pub domrepo.AlertPublisher) {
	ch, cancel := f.Subscribe()
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case a, ok := <-ch:
				if !ok {
					return
				}
				pctx, pcancel := context.WithTimeout(ctx, 5*time.Second)
				if err := pub.PublishAlert(pctx, a); err != nil {
					f.metrics.RecordError("alert_publish")
					f.log.Warn("alerts.publish failed", logger.String("alert", a.ID), logger.Error(err))
				}
				pcancel()
			}
		}
	}()
}
