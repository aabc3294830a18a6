package schedule

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
)

// DefaultEventsPerDay is how many stars a generated day holds.
const DefaultEventsPerDay = 6

var (
	ErrNoChannels = errors.New("schedule: channel pool is empty")
	ErrNoWords    = errors.New("schedule: word pool is empty")
)

// Generator builds random days. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator returns a generator drawing from rng. Pass a seeded source to
// get reproducible schedules.
func NewGenerator(rng *rand.Rand) *Generator {
	return &Generator{rng: rng}
}

// Generate picks n events for date: distinct hours, a free minute per event,
// channels and words each shuffled once and then cycled so every entry of a
// pool is used before any repeats. Events come back sorted by time with
// Completed unset.
func (g *Generator) Generate(date Date, channels []int64, words []string, n int) (*Day, error) {
	if n <= 0 || n > 24 {
		return nil, fmt.Errorf("schedule: event count %d out of range [1,24]", n)
	}
	if len(channels) == 0 {
		return nil, ErrNoChannels
	}
	if len(words) == 0 {
		return nil, ErrNoWords
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	hours := g.drawHours(n)

	chans := append([]int64(nil), channels...)
	g.rng.Shuffle(len(chans), func(i, j int) { chans[i], chans[j] = chans[j], chans[i] })
	pool := append([]string(nil), words...)
	g.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	day := &Day{Date: date, Events: make([]Event, n)}
	for i := 0; i < n; i++ {
		day.Events[i] = Event{
			Time:      TimeOfDay{Hour: hours[i], Minute: g.rng.Intn(60)},
			ChannelID: chans[i%len(chans)],
			Message:   pool[i%len(pool)],
		}
	}
	sort.Slice(day.Events, func(i, j int) bool {
		return day.Events[i].Time.Before(day.Events[j].Time)
	})
	return day, nil
}

// drawHours samples n distinct hours, redrawing on collision.
func (g *Generator) drawHours(n int) []int {
	used := make(map[int]bool, n)
	out := make([]int, 0, n)
	for len(out) < n {
		h := g.rng.Intn(24)
		if used[h] {
			continue
		}
		used[h] = true
		out = append(out, h)
	}
	return out
}
