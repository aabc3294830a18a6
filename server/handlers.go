package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/onnwee/shooting-star/ledger"
	"github.com/onnwee/shooting-star/schedule"
	"github.com/onnwee/shooting-star/star"
	"github.com/onnwee/shooting-star/telemetry"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// SkyView is the read side of the sky.
type SkyView interface {
	State() star.State
	Snapshot() (star.Active, bool)
}

// ScheduleSource reads the stored schedule without generating one. Load
// returns (nil, nil) when nothing is stored yet.
type ScheduleSource interface {
	Load(ctx context.Context) (*schedule.Day, error)
}

// Leaderboard reads top balances.
type Leaderboard interface {
	Top(ctx context.Context, n int) ([]ledger.Entry, error)
}

// PlatformControl is the part of the chat platform the HTTP surface touches.
type PlatformControl interface {
	Name() string
	Connected() bool
	RefreshCommands(ctx context.Context) error
}

// Deps are the collaborators the handlers read from.
type Deps struct {
	DB         *sql.DB
	Sky        SkyView
	Schedule   ScheduleSource
	Ledger     Leaderboard
	Platform   PlatformControl
	AdminToken string
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	d Deps
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(d Deps) *Handlers {
	return &Handlers{d: d}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string, err error) {
	telemetry.LoggerWithCorr(r.Context()).Error(msg, slog.Any("err", err), slog.String("path", r.URL.Path), slog.String("component", "http"))
	writeJSON(w, code, map[string]string{"error": msg})
}

type statusEvent struct {
	Time      string `json:"time"`
	ChannelID int64  `json:"channelId"`
	Completed bool   `json:"completed"`
	// Message is only shown once the event has fired and is no longer catchable.
	Message string `json:"message,omitempty"`
}

type statusResponse struct {
	State     string        `json:"state"`
	Star      *star.Active  `json:"star,omitempty"`
	Date      string        `json:"date,omitempty"`
	Remaining int           `json:"remaining"`
	Events    []statusEvent `json:"events"`
	Platform  string        `json:"platform,omitempty"`
	Connected bool          `json:"connected"`
	Tracing   bool          `json:"tracing"`
	Error     string        `json:"schedule_error,omitempty"`
}

// HandleStatus reports the sky state and the stored schedule with unfired
// words hidden. It never generates a schedule; that is the clock's job.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{State: star.Idle.String(), Events: []statusEvent{}, Tracing: telemetry.IsTracingEnabled()}
	var active star.Active
	armed := false
	if h.d.Sky != nil {
		resp.State = h.d.Sky.State().String()
		if a, ok := h.d.Sky.Snapshot(); ok {
			active, armed = a, true
			resp.Star = &a
		}
	}
	if h.d.Platform != nil {
		resp.Platform = h.d.Platform.Name()
		resp.Connected = h.d.Platform.Connected()
	}
	if h.d.Schedule != nil {
		day, err := h.d.Schedule.Load(r.Context())
		switch {
		case err != nil:
			telemetry.LoggerWithCorr(r.Context()).Warn("status: schedule unavailable", slog.Any("err", err), slog.String("component", "http"))
			resp.Error = err.Error()
		case day != nil:
			resp.Date = day.Date.String()
			resp.Remaining = day.Remaining()
			for _, ev := range day.Events {
				se := statusEvent{Time: ev.Time.String(), ChannelID: ev.ChannelID, Completed: ev.Completed}
				live := armed && ev.ChannelID == active.ChannelID && ev.Message == active.Word
				if ev.Completed && !live {
					se.Message = ev.Message
				}
				resp.Events = append(resp.Events, se)
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleLeaderboard returns the top balances. ?limit= caps the rows (default 10, max 100).
func (h *Handlers) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboardLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxLeaderboardLimit)
	}
	entries, err := h.d.Ledger.Top(r.Context(), limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "leaderboard unavailable", err)
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// HandleAdminSchedule returns the stored schedule, words included.
func (h *Handlers) HandleAdminSchedule(w http.ResponseWriter, r *http.Request) {
	day, err := h.d.Schedule.Load(r.Context())
	if err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "schedule unavailable", err)
		return
	}
	if day == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no schedule stored yet"})
		return
	}
	writeJSON(w, http.StatusOK, day)
}

// HandleAdminRefreshCommands re-registers the platform's commands.
func (h *Handlers) HandleAdminRefreshCommands(w http.ResponseWriter, r *http.Request) {
	if h.d.Platform == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no platform"})
		return
	}
	if err := h.d.Platform.RefreshCommands(r.Context()); err != nil {
		writeError(w, r, http.StatusBadGateway, "refresh commands failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
