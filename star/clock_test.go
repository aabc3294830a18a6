package star

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/shooting-star/schedule"
)

type memStore struct {
	mu      sync.Mutex
	day     *schedule.Day
	saves   []*schedule.Day
	saveErr error
}

func (m *memStore) Load(ctx context.Context) (*schedule.Day, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.day == nil {
		return nil, nil
	}
	return m.day.Clone(), nil
}

func (m *memStore) Save(ctx context.Context, d *schedule.Day) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.day = d.Clone()
	m.saves = append(m.saves, d.Clone())
	return nil
}

func (m *memStore) stored() *schedule.Day {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.day.Clone()
}

type fakeSky struct {
	state State
	err   error
	armed []schedule.Event
}

func (f *fakeSky) Arm(ctx context.Context, ev schedule.Event) error {
	if f.err != nil {
		return f.err
	}
	f.armed = append(f.armed, ev)
	return nil
}

func (f *fakeSky) State() State { return f.state }

var (
	today     = schedule.Date{Year: 2026, Month: time.October, Day: 15}
	yesterday = schedule.Date{Year: 2026, Month: time.October, Day: 14}
)

func at(h, m int) func() time.Time {
	return func() time.Time { return time.Date(2026, 10, 15, h, m, 0, 0, time.UTC) }
}

func handDay(times ...schedule.TimeOfDay) *schedule.Day {
	words := []string{"rawr", "scylla", "object", "slime", "ithaca", "nova"}
	d := &schedule.Day{Date: today}
	for i, tm := range times {
		d.Events = append(d.Events, schedule.Event{Time: tm, ChannelID: int64(100 + i), Message: words[i%len(words)]})
	}
	return d
}

func newTestClock(store schedule.Store, sky Armer, now func() time.Time) *Clock {
	return &Clock{
		Store:     store,
		Generator: schedule.NewGenerator(rand.New(rand.NewSource(1))),
		Sky:       sky,
		Channels:  []int64{100, 200, 300},
		Words:     []string{"rawr", "scylla", "object", "slime", "ithaca", "comet"},
		Location:  time.UTC,
		Now:       now,
		SaveTries: 1,
	}
}

func TestTodayGeneratesOnceAndIsIdempotent(t *testing.T) {
	store := &memStore{}
	c := newTestClock(store, &fakeSky{}, at(8, 0))

	first, err := c.Today(context.Background())
	if err != nil {
		t.Fatalf("Today: %v", err)
	}
	if first.Date != today || len(first.Events) != schedule.DefaultEventsPerDay {
		t.Fatalf("generated %s with %d events", first.Date, len(first.Events))
	}
	second, err := c.Today(context.Background())
	if err != nil {
		t.Fatalf("Today again: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("second call changed the schedule:\n%+v\n%+v", first, second)
	}
	if len(store.saves) != 1 {
		t.Fatalf("saves = %d, want 1", len(store.saves))
	}
}

func TestStaleDateRegeneratesExactlyOnce(t *testing.T) {
	old := handDay(schedule.TimeOfDay{Hour: 9}, schedule.TimeOfDay{Hour: 10})
	old.Date = yesterday
	old.Events[0].Message = "oldword"
	store := &memStore{day: old}
	sky := &fakeSky{}
	c := newTestClock(store, sky, at(0, 0))

	for i := 0; i < 3; i++ {
		if err := c.Tick(context.Background()); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	got := store.stored()
	if got.Date != today {
		t.Fatalf("stored date = %s, want %s", got.Date, today)
	}
	for _, ev := range got.Events {
		if ev.Message == "oldword" {
			t.Fatal("event from the previous day survived regeneration")
		}
	}
	generations := 0
	for _, s := range store.saves {
		if s.Remaining() == len(s.Events) {
			generations++
		}
	}
	if generations != 1 {
		t.Fatalf("schedule generated %d times, want 1", generations)
	}
}

func TestTickArmsDueEventAndMarksCompleted(t *testing.T) {
	store := &memStore{day: handDay(schedule.TimeOfDay{Hour: 9}, schedule.TimeOfDay{Hour: 12})}
	sky := &fakeSky{}
	c := newTestClock(store, sky, at(8, 59))

	if err := c.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(sky.armed) != 0 {
		t.Fatalf("armed %d stars before any were due", len(sky.armed))
	}

	c.Now = at(9, 0)
	if err := c.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(sky.armed) != 1 || sky.armed[0].Message != "rawr" || sky.armed[0].ChannelID != 100 {
		t.Fatalf("armed = %+v, want the 09:00 event", sky.armed)
	}
	if got := store.stored(); !got.Events[0].Completed || got.Events[1].Completed {
		t.Fatalf("completion flags = %v/%v, want true/false", got.Events[0].Completed, got.Events[1].Completed)
	}

	// Completed events never fire twice.
	if err := c.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(sky.armed) != 1 {
		t.Fatalf("armed = %d after repeat tick, want 1", len(sky.armed))
	}
}

func TestTickDefersWhileArmed(t *testing.T) {
	store := &memStore{day: handDay(schedule.TimeOfDay{Hour: 9})}
	sky := &fakeSky{state: Armed}
	c := newTestClock(store, sky, at(9, 30))

	if err := c.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(sky.armed) != 0 {
		t.Fatal("armed a star while another was active")
	}
	if store.stored().Events[0].Completed {
		t.Fatal("deferred event was marked completed")
	}

	sky.state = Idle
	if err := c.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(sky.armed) != 1 {
		t.Fatalf("deferred event never fired: armed = %d", len(sky.armed))
	}
}

func TestTickWaitsForPlatform(t *testing.T) {
	store := &memStore{day: handDay(schedule.TimeOfDay{Hour: 9})}
	sky := &fakeSky{}
	ready := false
	c := newTestClock(store, sky, at(9, 0))
	c.Ready = func() bool { return ready }

	if err := c.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(sky.armed) != 0 || store.stored().Events[0].Completed {
		t.Fatal("event fired before the platform was ready")
	}
	ready = true
	if err := c.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(sky.armed) != 1 {
		t.Fatalf("armed = %d once ready, want 1", len(sky.armed))
	}
}

func TestTickCatchesUpOnePerTick(t *testing.T) {
	store := &memStore{day: handDay(
		schedule.TimeOfDay{Hour: 1},
		schedule.TimeOfDay{Hour: 5, Minute: 30},
		schedule.TimeOfDay{Hour: 14},
		schedule.TimeOfDay{Hour: 23, Minute: 59},
	)}
	sky := &fakeSky{}
	c := newTestClock(store, sky, at(20, 0))

	for i := 0; i < 5; i++ {
		if err := c.Tick(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	var order []string
	for _, ev := range sky.armed {
		order = append(order, ev.Time.String())
	}
	want := []string{"01:00", "05:30", "14:00"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("catch-up order = %v, want %v", order, want)
	}
	if store.stored().Remaining() != 1 {
		t.Fatalf("remaining = %d, want 1", store.stored().Remaining())
	}
}

func TestTickSkipsUnreachableChannel(t *testing.T) {
	store := &memStore{day: handDay(schedule.TimeOfDay{Hour: 9}, schedule.TimeOfDay{Hour: 10})}
	sky := &fakeSky{err: errors.New("unknown channel")}
	c := newTestClock(store, sky, at(11, 0))

	if err := c.Tick(context.Background()); err != nil {
		t.Fatalf("tick with failing announce: %v", err)
	}
	if !store.stored().Events[0].Completed {
		t.Fatal("skipped event was not marked completed")
	}

	sky.err = nil
	if err := c.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(sky.armed) != 1 || sky.armed[0].Time.String() != "10:00" {
		t.Fatalf("armed = %+v, want the 10:00 event next", sky.armed)
	}
}

func TestTickWithoutChannels(t *testing.T) {
	store := &memStore{}
	c := newTestClock(store, &fakeSky{}, at(9, 0))
	c.Channels = nil

	if err := c.Tick(context.Background()); !errors.Is(err, ErrNoChannels) {
		t.Fatalf("err = %v, want ErrNoChannels", err)
	}
	if len(store.saves) != 0 {
		t.Fatal("schedule saved without channels")
	}
}

func TestTickSaveFailureDoesNotArm(t *testing.T) {
	store := &memStore{day: handDay(schedule.TimeOfDay{Hour: 9})}
	store.saveErr = errors.New("disk full")
	sky := &fakeSky{}
	c := newTestClock(store, sky, at(9, 5))

	if err := c.Tick(context.Background()); err == nil {
		t.Fatal("expected save error")
	}
	if len(sky.armed) != 0 {
		t.Fatal("armed a star whose completion was not persisted")
	}
}

func TestCorruptScheduleFileRegenerates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.json")
	if err := os.WriteFile(path, []byte("{{{"), 0o600); err != nil {
		t.Fatal(err)
	}
	c := newTestClock(schedule.NewFileStore(path), &fakeSky{}, at(0, 0))

	day, err := c.Today(context.Background())
	if err != nil {
		t.Fatalf("Today: %v", err)
	}
	if day.Date != today {
		t.Fatalf("date = %s, want %s", day.Date, today)
	}
	reloaded, err := schedule.NewFileStore(path).Load(context.Background())
	if err != nil || reloaded == nil {
		t.Fatalf("reload = %v, %v", reloaded, err)
	}
}

func TestClockWithSky(t *testing.T) {
	n := newFakeNotifier()
	l := newFakeLedger()
	sky := NewSky(n, l, Config{Window: time.Minute})
	t.Cleanup(sky.Close)

	store := &memStore{day: handDay(schedule.TimeOfDay{Hour: 9}, schedule.TimeOfDay{Hour: 9, Minute: 1})}
	c := newTestClock(store, sky, at(9, 2))

	if err := c.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if appeared, _, _ := n.counts(); appeared != 1 {
		t.Fatalf("appeared = %d, want 1 while the first star is armed", appeared)
	}

	if won, err := sky.Catch(context.Background(), Attempt{UserID: 5, Text: "RAWR"}); !won || err != nil {
		t.Fatalf("Catch = %v, %v", won, err)
	}
	if err := c.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	a, ok := sky.Snapshot()
	if !ok || a.Word != "scylla" {
		t.Fatalf("second star = %+v, %v; want scylla armed", a, ok)
	}
}
