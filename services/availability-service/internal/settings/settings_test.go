package settings

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotwise/libs/metrics"
	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/schedule"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
)

var errDown = errors.New("connection refused")

type memStore struct {
	mu    sync.Mutex
	docs  map[string]schedule.Settings
	fail  bool
	gets  int
	saves int
}

func newMemStore() *memStore {
	return &memStore{docs: map[string]schedule.Settings{}}
}

func (m *memStore) Get(_ context.Context, id string) (schedule.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.fail {
		return schedule.Settings{}, errDown
	}
	s, ok := m.docs[id]
	if !ok {
		return schedule.Settings{}, ErrNotFound
	}
	return s, nil
}

func (m *memStore) Save(_ context.Context, s schedule.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.fail {
		return errDown
	}
	m.docs[s.BusinessID] = s
	return nil
}

func (m *memStore) setFail(v bool) {
	m.mu.Lock()
	m.fail = v
	m.mu.Unlock()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recorder struct {
	got []schedule.Settings
	err error
}

func (r *recorder) SettingsUpdated(_ context.Context, s schedule.Settings) error {
	r.got = append(r.got, s)
	return r.err
}

func TestServiceDefaultsWhenNothingStored(t *testing.T) {
	svc := NewService(newMemStore(), quietLogger())
	s, err := svc.Load(context.Background(), "biz-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.BufferMinutes != schedule.DefaultBufferMinutes || s.BusinessID != "biz-1" {
		t.Fatalf("expected defaults, got %+v", s)
	}
}

func TestServiceStoreFailure(t *testing.T) {
	store := newMemStore()
	store.setFail(true)
	svc := NewService(store, quietLogger())

	if _, err := svc.Load(context.Background(), "biz-1"); !errors.Is(err, ErrSettingsUnavailable) {
		t.Fatalf("expected ErrSettingsUnavailable, got %v", err)
	}
	s := svc.GetAvailabilitySettings(context.Background(), "biz-1")
	if s.AdvanceBookingDays != schedule.DefaultAdvanceBookingDays {
		t.Fatalf("expected defaults on failure, got %+v", s)
	}
}

func TestServiceSaveValidatesStampsAndRecords(t *testing.T) {
	store := newMemStore()
	rec := &recorder{}
	fixed := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	svc := NewService(store, quietLogger(), WithChangeRecorder(rec), WithClock(func() time.Time { return fixed }))

	bad := schedule.DefaultSettings("biz-1")
	bad.AdvanceBookingDays = 0
	var verr *schedule.ValidationError
	if err := svc.SaveAvailabilitySettings(context.Background(), bad); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if store.saves != 0 {
		t.Fatalf("invalid settings must not be stored")
	}

	good := schedule.DefaultSettings("biz-1")
	good.BufferMinutes = 5
	if err := svc.SaveAvailabilitySettings(context.Background(), good); err != nil {
		t.Fatalf("save: %v", err)
	}
	got := svc.GetAvailabilitySettings(context.Background(), "biz-1")
	if got.BufferMinutes != 5 || !got.UpdatedAt.Equal(fixed) {
		t.Fatalf("unexpected stored settings %+v", got)
	}
	if len(rec.got) != 1 || rec.got[0].BusinessID != "biz-1" {
		t.Fatalf("expected one change event, got %d", len(rec.got))
	}
}

func TestServiceSaveStampsMicroseconds(t *testing.T) {
	store := newMemStore()
	at := time.Date(2024, 1, 10, 8, 0, 0, 123456789, time.UTC)
	svc := NewService(store, quietLogger(), WithClock(func() time.Time { return at }))
	if err := svc.SaveAvailabilitySettings(context.Background(), schedule.DefaultSettings("biz-1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := store.docs["biz-1"].UpdatedAt; got.Nanosecond() != 123456000 {
		t.Fatalf("expected microsecond stamp, got %s", got)
	}
}

func TestServiceSaveSurvivesRecorderFailure(t *testing.T) {
	rec := &recorder{err: errors.New("outbox down")}
	svc := NewService(newMemStore(), quietLogger(), WithChangeRecorder(rec))
	if err := svc.SaveAvailabilitySettings(context.Background(), schedule.DefaultSettings("biz-1")); err != nil {
		t.Fatalf("save must not fail on event error: %v", err)
	}
}

func TestFallbackReadsSecondaryWhenPrimaryFails(t *testing.T) {
	primary, secondary := newMemStore(), newMemStore()
	m := metrics.NewCollector("test")
	f := NewFallbackStore(primary, secondary, BreakerOptions{ConsecutiveFailures: 100}, quietLogger(), m)
	ctx := context.Background()

	s := schedule.DefaultSettings("biz-1")
	s.BufferMinutes = 10
	if err := f.Save(ctx, s); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, ok := secondary.docs["biz-1"]; !ok {
		t.Fatalf("primary write must be mirrored to secondary")
	}

	primary.setFail(true)
	got, err := f.Get(ctx, "biz-1")
	if err != nil {
		t.Fatalf("get with primary down: %v", err)
	}
	if got.BufferMinutes != 10 {
		t.Fatalf("expected secondary copy, got %+v", got)
	}
}

func TestFallbackNotFoundInPrimaryIsAuthoritative(t *testing.T) {
	primary, secondary := newMemStore(), newMemStore()
	secondary.docs["biz-1"] = schedule.DefaultSettings("biz-1")
	f := NewFallbackStore(primary, secondary, BreakerOptions{}, quietLogger(), nil)

	if _, err := f.Get(context.Background(), "biz-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFallbackBothFailing(t *testing.T) {
	primary, secondary := newMemStore(), newMemStore()
	primary.setFail(true)
	secondary.setFail(true)
	f := NewFallbackStore(primary, secondary, BreakerOptions{}, quietLogger(), nil)
	ctx := context.Background()

	if _, err := f.Get(ctx, "biz-1"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected hard failure, got %v", err)
	}
	if err := f.Save(ctx, schedule.DefaultSettings("biz-1")); err == nil {
		t.Fatalf("expected save failure")
	}
}

func TestFallbackWriteLandsInSecondaryWhenPrimaryDown(t *testing.T) {
	primary, secondary := newMemStore(), newMemStore()
	primary.setFail(true)
	f := NewFallbackStore(primary, secondary, BreakerOptions{}, quietLogger(), nil)

	if err := f.Save(context.Background(), schedule.DefaultSettings("biz-1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, ok := secondary.docs["biz-1"]; !ok {
		t.Fatalf("expected secondary to hold the write")
	}
}

func TestFallbackBreakerOpensAndSkipsPrimary(t *testing.T) {
	primary, secondary := newMemStore(), newMemStore()
	secondary.docs["biz-1"] = schedule.DefaultSettings("biz-1")
	primary.setFail(true)
	f := NewFallbackStore(primary, secondary, BreakerOptions{ConsecutiveFailures: 2, OpenFor: time.Hour}, quietLogger(), nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := f.Get(ctx, "biz-1"); err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
	}
	if f.State() != gobreaker.StateOpen {
		t.Fatalf("expected open breaker, got %s", f.State())
	}
	before := primary.gets
	if _, err := f.Get(ctx, "biz-1"); err != nil {
		t.Fatalf("get with open breaker: %v", err)
	}
	if primary.gets != before {
		t.Fatalf("open breaker must not call primary")
	}
}

func TestFallbackReplaysWriteAcknowledgedWhilePrimaryDown(t *testing.T) {
	primary, secondary := newMemStore(), newMemStore()
	f := NewFallbackStore(primary, secondary, BreakerOptions{ConsecutiveFailures: 100}, quietLogger(), nil)
	ctx := context.Background()
	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	s := schedule.DefaultSettings("biz-1")
	s.BufferMinutes = 5
	s.UpdatedAt = t0
	if err := f.Save(ctx, s); err != nil {
		t.Fatalf("save: %v", err)
	}

	primary.setFail(true)
	s.BufferMinutes = 45
	s.UpdatedAt = t0.Add(time.Minute)
	if err := f.Save(ctx, s); err != nil {
		t.Fatalf("save with primary down must be acknowledged: %v", err)
	}
	primary.setFail(false)

	got, err := f.Get(ctx, "biz-1")
	if err != nil {
		t.Fatalf("get after recovery: %v", err)
	}
	if got.BufferMinutes != 45 {
		t.Fatalf("acknowledged write lost: got buffer %d, want 45", got.BufferMinutes)
	}
	if primary.docs["biz-1"].BufferMinutes != 45 {
		t.Fatalf("primary not caught up: %+v", primary.docs["biz-1"])
	}
	if secondary.docs["biz-1"].BufferMinutes != 45 {
		t.Fatalf("secondary overwritten with stale copy: %+v", secondary.docs["biz-1"])
	}
}

func TestFallbackReplaysFirstSaveThatMissedPrimary(t *testing.T) {
	primary, secondary := newMemStore(), newMemStore()
	f := NewFallbackStore(primary, secondary, BreakerOptions{ConsecutiveFailures: 100}, quietLogger(), nil)
	ctx := context.Background()

	s := schedule.DefaultSettings("biz-1")
	s.BufferMinutes = 30
	s.UpdatedAt = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	primary.setFail(true)
	if err := f.Save(ctx, s); err != nil {
		t.Fatalf("save: %v", err)
	}
	primary.setFail(false)

	got, err := f.Get(ctx, "biz-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.BufferMinutes != 30 {
		t.Fatalf("expected local write, got %+v", got)
	}
	if _, ok := primary.docs["biz-1"]; !ok {
		t.Fatalf("local write must be replayed to primary")
	}
}

func TestFallbackPrimaryNewerOverwritesSecondary(t *testing.T) {
	primary, secondary := newMemStore(), newMemStore()
	f := NewFallbackStore(primary, secondary, BreakerOptions{}, quietLogger(), nil)
	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	stale := schedule.DefaultSettings("biz-1")
	stale.UpdatedAt = t0
	secondary.docs["biz-1"] = stale
	fresh := stale
	fresh.BufferMinutes = 50
	fresh.UpdatedAt = t0.Add(time.Hour)
	primary.docs["biz-1"] = fresh

	got, err := f.Get(context.Background(), "biz-1")
	if err != nil || got.BufferMinutes != 50 {
		t.Fatalf("expected primary copy: %+v %v", got, err)
	}
	if secondary.docs["biz-1"].BufferMinutes != 50 {
		t.Fatalf("secondary not refreshed")
	}
}

type fakeRedis struct {
	data map[string]string
	fail bool
	gets int
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.gets++
	if f.fail {
		return redis.NewStringResult("", errDown)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	if f.fail {
		return redis.NewStatusResult("", errDown)
	}
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	if f.fail {
		return redis.NewBoolResult(false, errDown)
	}
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	if err := f.Set(ctx, key, value, ttl).Err(); err != nil {
		return redis.NewBoolResult(false, err)
	}
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestCachedStoreReadThroughAndInvalidate(t *testing.T) {
	next := newMemStore()
	rdb := &fakeRedis{data: map[string]string{}}
	c := NewCachedStore(next, rdb, time.Minute, quietLogger(), nil)
	ctx := context.Background()

	s := schedule.DefaultSettings("biz-1")
	s.BufferMinutes = 20
	next.docs["biz-1"] = s

	for i := 0; i < 3; i++ {
		got, err := c.Get(ctx, "biz-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.BufferMinutes != 20 {
			t.Fatalf("unexpected settings %+v", got)
		}
	}
	if next.gets != 1 {
		t.Fatalf("expected a single read from the store, got %d", next.gets)
	}

	s.BufferMinutes = 0
	if err := c.Save(ctx, s); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := c.Get(ctx, "biz-1")
	if err != nil {
		t.Fatalf("get after save: %v", err)
	}
	if got.BufferMinutes != 0 {
		t.Fatalf("cache not invalidated: %+v", got)
	}
}

// slowReader runs onGet after the underlying read returns, before the cache is filled.
type slowReader struct {
	Store
	onGet func()
}

func (r *slowReader) Get(ctx context.Context, id string) (schedule.Settings, error) {
	s, err := r.Store.Get(ctx, id)
	if r.onGet != nil {
		hook := r.onGet
		r.onGet = nil
		hook()
	}
	return s, err
}

func TestCachedStoreReadRacingSaveKeepsNewDocument(t *testing.T) {
	next := newMemStore()
	old := schedule.DefaultSettings("biz-1")
	old.BufferMinutes = 5
	next.docs["biz-1"] = old

	rdb := &fakeRedis{data: map[string]string{}}
	reader := &slowReader{Store: next}
	c := NewCachedStore(reader, rdb, time.Minute, quietLogger(), nil)
	ctx := context.Background()

	updated := old
	updated.BufferMinutes = 45
	reader.onGet = func() {
		if err := c.Save(ctx, updated); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if got, err := c.Get(ctx, "biz-1"); err != nil || got.BufferMinutes != 5 {
		t.Fatalf("racing read should see the document it loaded: %+v %v", got, err)
	}

	got, err := c.Get(ctx, "biz-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.BufferMinutes != 45 {
		t.Fatalf("stale document cached: got buffer %d, want 45", got.BufferMinutes)
	}
}

func TestCachedStoreIgnoresRedisFailures(t *testing.T) {
	next := newMemStore()
	next.docs["biz-1"] = schedule.DefaultSettings("biz-1")
	c := NewCachedStore(next, &fakeRedis{data: map[string]string{}, fail: true}, time.Minute, quietLogger(), nil)

	if _, err := c.Get(context.Background(), "biz-1"); err != nil {
		t.Fatalf("redis failure must not fail reads: %v", err)
	}
	if _, err := c.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "settings.db"), time.Second)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if _, err := store.Get(ctx, "biz-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	s := schedule.DefaultSettings("biz-1")
	d := schedule.MustParseDate("2024-07-04")
	s.Blocks[d] = schedule.DateBlock{Date: d, FullDay: true}
	s.UpdatedAt = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("save: %v", err)
	}
	s.BufferMinutes = 0
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := store.Get(ctx, "biz-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.BufferMinutes != 0 {
		t.Fatalf("expected last write to win, got buffer %d", got.BufferMinutes)
	}
	if b, ok := got.Block(d); !ok || !b.FullDay {
		t.Fatalf("block lost: %+v", got.Blocks)
	}
	if !got.UpdatedAt.Equal(s.UpdatedAt) {
		t.Fatalf("updated_at: got %s want %s", got.UpdatedAt, s.UpdatedAt)
	}
}
