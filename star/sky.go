package star

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/shooting-star/schedule"
	"github.com/onnwee/shooting-star/telemetry"
)

const (
	// DefaultReward is what a catch is worth.
	DefaultReward int64 = 130
	// DefaultWindow is how long a star stays catchable.
	DefaultWindow = 60 * time.Second

	notifyTimeout = 10 * time.Second
)

var (
	// ErrArmed is returned by Arm while another star is armed.
	ErrArmed = errors.New("star: a star is already armed")
	// ErrNotCredited wraps ledger failures after a winning catch.
	ErrNotCredited = errors.New("star: catch not credited")
)

// State of the sky.
type State int

const (
	Idle State = iota
	Armed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	default:
		return "unknown"
	}
}

// Active describes the armed star.
type Active struct {
	ID        string    `json:"id"`
	Word      string    `json:"-"`
	ChannelID int64     `json:"channel_id"`
	ArmedAt   time.Time `json:"armed_at"`
	Deadline  time.Time `json:"deadline"`
}

// Attempt is a chat message offered to the sky.
type Attempt struct {
	UserID      int64
	DisplayName string
	Mention     string
	ChannelID   int64
	Text        string
}

// Notifier publishes the star's lifecycle to the chat platform.
type Notifier interface {
	Appeared(ctx context.Context, a Active) error
	Caught(ctx context.Context, a Active, by Attempt, reward, total int64) error
	Faded(ctx context.Context, a Active) error
}

// Crediter credits coins and returns the user's new balance.
type Crediter interface {
	AddCoins(ctx context.Context, userID int64, displayName string, amount int64) (int64, error)
}

// Config tunes a Sky. Zero values take the defaults.
type Config struct {
	Reward int64
	Window time.Duration
	Now    func() time.Time
}

type armed struct {
	Active
	gen   uint64
	timer *time.Timer
}

// Sky owns the single active star slot. Leaving Armed happens exactly once
// under mu, whichever of a winning catch or the deadline gets there first;
// the loser observes Idle and does nothing.
type Sky struct {
	notify Notifier
	ledger Crediter
	reward int64
	window time.Duration
	now    func() time.Time

	mu  sync.Mutex
	cur *armed
	gen uint64
}

// NewSky returns an idle sky.
func NewSky(n Notifier, l Crediter, cfg Config) *Sky {
	s := &Sky{notify: n, ledger: l, reward: cfg.Reward, window: cfg.Window, now: cfg.Now}
	if s.reward <= 0 {
		s.reward = DefaultReward
	}
	if s.window <= 0 {
		s.window = DefaultWindow
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// State reports Armed while a star is armed, including while its
// announcement is in flight.
func (s *Sky) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil {
		return Armed
	}
	return Idle
}

// Snapshot returns the armed star, if any.
func (s *Sky) Snapshot() (Active, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return Active{}, false
	}
	return s.cur.Active, true
}

// Arm makes ev catchable and announces it. The slot is taken before the
// announcement goes out, so a reply racing the announcement can still win;
// the window restarts once the announcement is delivered. When the
// announcement fails the star is withdrawn and the error is returned.
func (s *Sky) Arm(ctx context.Context, ev schedule.Event) error {
	a := Active{ID: uuid.NewString(), Word: ev.Message, ChannelID: ev.ChannelID}
	ctx = telemetry.WithCorrelation(ctx, a.ID)
	log := telemetry.LoggerWithCorr(ctx)

	s.mu.Lock()
	if s.cur != nil {
		s.mu.Unlock()
		return ErrArmed
	}
	s.gen++
	gen := s.gen
	bg := context.WithoutCancel(ctx)
	a.ArmedAt = s.now()
	a.Deadline = a.ArmedAt.Add(s.window)
	cur := &armed{Active: a, gen: gen}
	cur.timer = time.AfterFunc(s.window, func() { s.expire(bg, gen) })
	s.cur = cur
	telemetry.SetArmed(true)
	s.mu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, "star", "star.arm", attribute.Int64("channel_id", ev.ChannelID))
	defer span.End()

	nctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	err := s.notify.Appeared(nctx, a)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	mine := s.cur != nil && s.cur.gen == gen
	if err != nil {
		if mine {
			s.cur.timer.Stop()
			s.cur = nil
			telemetry.SetArmed(false)
		}
		telemetry.RecordError(span, err)
		return fmt.Errorf("announce star in channel %d: %w", ev.ChannelID, err)
	}

	if mine && s.cur.timer.Stop() {
		s.cur.ArmedAt = s.now()
		s.cur.Deadline = s.cur.ArmedAt.Add(s.window)
		s.cur.timer = time.AfterFunc(s.window, func() { s.expire(bg, gen) })
		a = s.cur.Active
	}

	telemetry.Inc(telemetry.StarsArmed)
	telemetry.SetSpanSuccess(span)
	log.Info("star armed", slog.Int64("channel_id", a.ChannelID), slog.Time("deadline", a.Deadline), slog.String("component", "star"))
	return nil
}

// Catch offers a message to the armed star. It reports whether this attempt
// won. A winning attempt whose credit fails returns true with an error
// wrapping ErrNotCredited; no success is announced in that case.
func (s *Sky) Catch(ctx context.Context, at Attempt) (bool, error) {
	s.mu.Lock()
	cur := s.cur
	if cur == nil || !Matches(cur.Word, at.Text) {
		s.mu.Unlock()
		return false, nil
	}
	s.cur = nil
	cur.timer.Stop()
	telemetry.SetArmed(false)
	s.mu.Unlock()

	caughtAt := s.now()
	telemetry.Inc(telemetry.StarsCaught)
	telemetry.Observe(telemetry.CatchLatency, caughtAt.Sub(cur.ArmedAt).Seconds())

	ctx = telemetry.WithCorrelation(ctx, cur.ID)
	log := telemetry.LoggerWithCorr(ctx)
	ctx, span := telemetry.StartSpan(ctx, "star", "star.catch",
		attribute.Int64("user_id", at.UserID),
		attribute.Int64("channel_id", at.ChannelID))
	defer span.End()

	total, err := s.ledger.AddCoins(ctx, at.UserID, at.DisplayName, s.reward)
	if err != nil {
		telemetry.Inc(telemetry.LedgerFailures)
		telemetry.RecordError(span, err)
		log.Error("star caught but credit failed", slog.Int64("user_id", at.UserID), slog.Any("err", err), slog.String("component", "star"))
		return true, fmt.Errorf("%w: %w", ErrNotCredited, err)
	}
	telemetry.Add(telemetry.CoinsAwarded, float64(s.reward))
	log.Info("star caught", slog.Int64("user_id", at.UserID), slog.String("user", at.DisplayName), slog.Int64("total", total), slog.String("component", "star"))

	nctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	if err := s.notify.Caught(nctx, cur.Active, at, s.reward, total); err != nil {
		telemetry.RecordError(span, err)
		return true, fmt.Errorf("announce catch: %w", err)
	}
	telemetry.SetSpanSuccess(span)
	return true, nil
}

// expire fades the star armed as generation gen, if it is still the armed one.
func (s *Sky) expire(ctx context.Context, gen uint64) {
	s.mu.Lock()
	cur := s.cur
	if cur == nil || cur.gen != gen {
		s.mu.Unlock()
		return
	}
	s.cur = nil
	telemetry.SetArmed(false)
	s.mu.Unlock()

	telemetry.Inc(telemetry.StarsFaded)
	log := telemetry.LoggerWithCorr(ctx)
	log.Info("star faded", slog.Int64("channel_id", cur.ChannelID), slog.String("component", "star"))

	nctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	if err := s.notify.Faded(nctx, cur.Active); err != nil {
		log.Warn("fade notification failed", slog.Any("err", err), slog.String("component", "star"))
	}
}

// Close drops an armed star without announcing anything. Used on shutdown.
func (s *Sky) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil {
		s.cur.timer.Stop()
		s.cur = nil
		telemetry.SetArmed(false)
	}
}
