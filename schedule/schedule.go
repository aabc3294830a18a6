// Package schedule holds a day's shooting star timetable: the data model, its
// JSON wire form, the random generator and the stores that persist it.
//
// A Day is regenerated whenever the stored one is missing, unreadable or dated
// for another day. Events are flipped to Completed when they are handed to the
// sky (not when they are caught), and the day is saved after every flip so a
// restart neither loses progress nor fires an event twice.
package schedule

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock hour and minute. It encodes as "HH:MM".
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ClockOf returns the time of day of t in t's location.
func ClockOf(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

// Before reports whether t is strictly earlier than u.
func (t TimeOfDay) Before(u TimeOfDay) bool { return t.Minutes() < u.Minutes() }

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parsed, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q (expected HH:MM): %w", s, err)
	}
	return ClockOf(parsed), nil
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Date is a calendar date. It encodes as an ISO date ("2006-01-02").
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses an ISO date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// At returns the instant at clock c on this date in loc.
func (d Date) At(c TimeOfDay, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, 0, 0, loc)
}

func (d Date) String() string { return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day) }

func (d Date) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Event is one scheduled shooting star.
type Event struct {
	Time      TimeOfDay `json:"time"`
	ChannelID int64     `json:"channelId"`
	Message   string    `json:"message"`
	Completed bool      `json:"completed"`
}

// Day is the ordered list of events for one calendar date.
type Day struct {
	Date   Date    `json:"date"`
	Events []Event `json:"events"`
}

// NextDue returns the index of the first uncompleted event whose time is at or
// before now, or -1 when nothing is due. Events are kept in ascending order,
// so events that were missed while the bot was down are returned first.
func (d *Day) NextDue(now TimeOfDay) int {
	for i, ev := range d.Events {
		if ev.Completed {
			continue
		}
		if now.Before(ev.Time) {
			return -1
		}
		return i
	}
	return -1
}

// Remaining counts events not yet handed out.
func (d *Day) Remaining() int {
	n := 0
	for _, ev := range d.Events {
		if !ev.Completed {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (d *Day) Clone() *Day {
	if d == nil {
		return nil
	}
	out := &Day{Date: d.Date, Events: make([]Event, len(d.Events))}
	copy(out.Events, d.Events)
	return out
}

// Validate checks the invariants every stored or generated day must hold:
// times strictly ascending (and therefore unique) and no empty messages.
func (d *Day) Validate() error {
	for i, ev := range d.Events {
		if ev.Message == "" {
			return fmt.Errorf("event %d has no message", i)
		}
		if ev.Time.Hour < 0 || ev.Time.Hour > 23 || ev.Time.Minute < 0 || ev.Time.Minute > 59 {
			return fmt.Errorf("event %d has out of range time %s", i, ev.Time)
		}
		if i > 0 && !d.Events[i-1].Time.Before(ev.Time) {
			return fmt.Errorf("event %d at %s is not after %s", i, ev.Time, d.Events[i-1].Time)
		}
	}
	return nil
}

// Encode returns the JSON wire form of d.
func Encode(d *Day) ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// Decode parses and validates the JSON wire form.
func Decode(b []byte) (*Day, error) {
	var d Day
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("decode schedule: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}
	return &d, nil
}
