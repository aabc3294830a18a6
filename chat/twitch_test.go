package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/shooting-star/schedule"
	"github.com/onnwee/shooting-star/star"
)

type dayStore struct {
	mu  sync.Mutex
	day *schedule.Day
}

func (s *dayStore) Load(ctx context.Context) (*schedule.Day, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.day.Clone(), nil
}

func (s *dayStore) Save(ctx context.Context, d *schedule.Day) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.day = d.Clone()
	return nil
}

func TestTwitchReadyNeedsEveryRoom(t *testing.T) {
	tw := NewTwitch("starbot", "token", []string{"#Alpha", "beta"})
	if tw.Connected() {
		t.Fatal("ready before connecting")
	}
	tw.connected.Store(true)
	if tw.Connected() {
		t.Fatal("ready before any ROOMSTATE")
	}
	tw.onRoomState(twitch.RoomStateMessage{Channel: "alpha", RoomID: "1234"})
	if tw.Connected() {
		t.Fatal("ready with beta still unmapped")
	}
	tw.onRoomState(twitch.RoomStateMessage{Channel: "beta", RoomID: "5678"})
	if !tw.Connected() {
		t.Fatal("not ready after every room was mapped")
	}
	tw.connected.Store(false)
	if tw.Connected() {
		t.Fatal("ready while disconnected")
	}
}

func TestTwitchClockWaitsForRoomState(t *testing.T) {
	tw := NewTwitch("starbot", "token", []string{"alpha"})
	var mu sync.Mutex
	var said []string
	tw.say = func(channel, text string) {
		mu.Lock()
		defer mu.Unlock()
		said = append(said, channel)
	}
	tw.connected.Store(true)

	sky := star.NewSky(tw, failingCrediter{}, star.Config{Window: time.Minute})
	t.Cleanup(sky.Close)

	date := schedule.Date{Year: 2026, Month: time.October, Day: 15}
	store := &dayStore{day: &schedule.Day{Date: date, Events: []schedule.Event{
		{Time: schedule.TimeOfDay{Hour: 9}, ChannelID: 1234, Message: "ithaca"},
	}}}
	clock := &star.Clock{
		Store:     store,
		Sky:       sky,
		Channels:  []int64{1234},
		Words:     []string{"ithaca"},
		Location:  time.UTC,
		Now:       func() time.Time { return time.Date(2026, 10, 15, 9, 0, 30, 0, time.UTC) },
		SaveTries: 1,
		Ready:     tw.Connected,
	}

	if err := clock.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if store.day.Events[0].Completed || sky.State() != star.Idle {
		t.Fatal("event consumed before the room was known")
	}

	tw.onRoomState(twitch.RoomStateMessage{Channel: "alpha", RoomID: "1234"})
	if err := clock.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !store.day.Events[0].Completed || sky.State() != star.Armed {
		t.Fatalf("completed=%v state=%s, want the star armed", store.day.Events[0].Completed, sky.State())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(said) != 1 || said[0] != "alpha" {
		t.Fatalf("said = %v, want one announcement in alpha", said)
	}
}
