package star

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/robfig/cron/v3"

	"github.com/onnwee/shooting-star/schedule"
	"github.com/onnwee/shooting-star/telemetry"
)

// DefaultTickInterval is how often the clock looks for a due star. It must
// stay below a minute because schedule times have minute resolution.
const DefaultTickInterval = 30 * time.Second

// ErrNoChannels means no target channels are configured; the tick is skipped.
var ErrNoChannels = errors.New("star: no channels configured")

// Armer is the part of Sky the clock drives.
type Armer interface {
	Arm(ctx context.Context, ev schedule.Event) error
	State() State
}

// Clock walks the day's schedule and arms due stars.
type Clock struct {
	Store     schedule.Store
	Generator *schedule.Generator
	Sky       Armer
	Channels  []int64
	Words     []string
	PerDay    int
	Location  *time.Location
	Now       func() time.Time
	// SaveTries bounds schedule save attempts per tick (default 3).
	SaveTries uint
	// Ready, when set, gates arming: due events wait while it reports false.
	Ready func() bool

	mu sync.Mutex
}

func (c *Clock) now() time.Time {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return now().In(c.location())
}

func (c *Clock) location() *time.Location {
	if c.Location != nil {
		return c.Location
	}
	return time.UTC
}

func (c *Clock) perDay() int {
	if c.PerDay > 0 {
		return c.PerDay
	}
	return schedule.DefaultEventsPerDay
}

// Today returns today's schedule, generating and saving a new one when the
// stored schedule is missing or belongs to another date. Repeated calls on
// the same day return the stored schedule unchanged.
func (c *Clock) Today(ctx context.Context) (*schedule.Day, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.today(ctx, c.now())
}

func (c *Clock) today(ctx context.Context, now time.Time) (*schedule.Day, error) {
	date := schedule.DateOf(now)
	day, err := c.Store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	if day != nil && day.Date == date {
		return day, nil
	}

	fresh, err := c.Generator.Generate(date, c.Channels, c.Words, c.perDay())
	if err != nil {
		return nil, fmt.Errorf("generate schedule: %w", err)
	}
	if err := c.save(ctx, fresh); err != nil {
		return nil, fmt.Errorf("save new schedule: %w", err)
	}
	telemetry.Inc(telemetry.SchedulesGenerated)

	times := make([]string, len(fresh.Events))
	for i, ev := range fresh.Events {
		times[i] = ev.Time.String()
	}
	attrs := []any{slog.String("date", date.String()), slog.Any("times", times), slog.String("component", "clock")}
	if day != nil {
		attrs = append(attrs, slog.String("replaced", day.Date.String()))
	}
	slog.Info("schedule generated", attrs...)
	return fresh, nil
}

func (c *Clock) save(ctx context.Context, day *schedule.Day) error {
	tries := c.SaveTries
	if tries == 0 {
		tries = 3
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.Store.Save(ctx, day)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(tries))
	return err
}

// Tick runs one clock step: make sure today's schedule exists, then hand the
// next due event to the sky. Events whose time passed while the bot was down
// are still due and fire late, one per tick.
func (c *Clock) Tick(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	telemetry.Inc(telemetry.ClockTicks)
	if len(c.Channels) == 0 {
		slog.Warn("no target channels configured; skipping tick", slog.String("component", "clock"))
		return ErrNoChannels
	}

	now := c.now()
	day, err := c.today(ctx, now)
	if err != nil {
		return err
	}
	telemetry.SetRemaining(day.Remaining())

	i := day.NextDue(schedule.ClockOf(now))
	if i < 0 {
		return nil
	}
	ev := day.Events[i]
	if c.Sky.State() == Armed {
		slog.Debug("star still armed; deferring due event", slog.String("time", ev.Time.String()), slog.String("component", "clock"))
		return nil
	}
	if c.Ready != nil && !c.Ready() {
		slog.Debug("platform not ready; deferring due event", slog.String("time", ev.Time.String()), slog.String("component", "clock"))
		return nil
	}

	day.Events[i].Completed = true
	if err := c.save(ctx, day); err != nil {
		return fmt.Errorf("mark event %s completed: %w", ev.Time, err)
	}
	telemetry.SetRemaining(day.Remaining())

	if late := now.Sub(day.Date.At(ev.Time, c.location())); late >= time.Minute {
		slog.Info("firing overdue event", slog.String("time", ev.Time.String()), slog.Duration("late", late.Truncate(time.Second)), slog.String("component", "clock"))
	}
	if err := c.Sky.Arm(ctx, ev); err != nil {
		telemetry.Inc(telemetry.StarsSkipped)
		slog.Warn("star skipped",
			slog.String("time", ev.Time.String()),
			slog.Int64("channel_id", ev.ChannelID),
			slog.Any("err", err),
			slog.String("component", "clock"))
	}
	return nil
}

// Run ticks once immediately and then every interval until ctx is done.
// Ticks never overlap; a slow tick makes the next one skip.
func (c *Clock) Run(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = DefaultTickInterval
	}
	logger := cronLogger{}
	cr := cron.New(
		cron.WithLocation(c.location()),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := cr.AddFunc("@every "+every.String(), func() { c.runTick(ctx, every) }); err != nil {
		return fmt.Errorf("schedule clock: %w", err)
	}

	slog.Info("event clock started", slog.Duration("interval", every), slog.String("tz", c.location().String()), slog.String("component", "clock"))
	c.runTick(ctx, every)
	cr.Start()
	<-ctx.Done()
	<-cr.Stop().Done()
	slog.Info("event clock stopped", slog.String("component", "clock"))
	return nil
}

func (c *Clock) runTick(ctx context.Context, limit time.Duration) {
	if ctx.Err() != nil {
		return
	}
	tctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()
	telemetry.TimeFunc(telemetry.TickDuration, func() {
		if err := c.Tick(tctx); err != nil && !errors.Is(err, ErrNoChannels) {
			slog.Error("clock tick failed", slog.Any("err", err), slog.String("component", "clock"))
		}
	})
}

// cronLogger routes cron's logging into slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append([]any{slog.Any("err", err)}, keysAndValues...)...)
}
