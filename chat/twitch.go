package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/shooting-star/star"
)

// Twitch is the IRC-backed Platform. Channel ids are Twitch room ids; the
// login for each room is learned from ROOMSTATE after joining. The platform
// reports Connected only once every configured channel has a known room.
type Twitch struct {
	client   *twitch.Client
	username string
	channels []string
	say      func(channel, text string)

	connected atomic.Bool
	mu        sync.RWMutex
	rooms     map[int64]string
	joined    map[string]bool
	ctx       context.Context
	h         Handler
}

// NewTwitch creates a client for the bot account that will join channels.
func NewTwitch(username, oauth string, channels []string) *Twitch {
	if !strings.HasPrefix(oauth, "oauth:") {
		oauth = "oauth:" + oauth
	}
	client := twitch.NewClient(username, oauth)
	logins := make([]string, 0, len(channels))
	for _, c := range channels {
		logins = append(logins, strings.ToLower(strings.TrimPrefix(c, "#")))
	}
	channels = logins
	t := &Twitch{
		client:   client,
		username: strings.ToLower(username),
		channels: channels,
		say:      client.Say,
		rooms:    map[int64]string{},
		joined:   map[string]bool{},
		ctx:      context.Background(),
	}
	client.OnConnect(func() {
		t.connected.Store(true)
		slog.Info("twitch chat connected", slog.Any("channels", channels), slog.String("component", "twitch"))
	})
	client.OnRoomStateMessage(t.onRoomState)
	client.OnPrivateMessage(t.onPrivateMessage)
	return t
}

func (t *Twitch) Name() string { return "twitch" }

// Connected reports whether the connection is up and the room id of every
// configured channel has been learned. Before that, stars for a room would
// be unreachable.
func (t *Twitch) Connected() bool {
	if !t.connected.Load() {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, c := range t.channels {
		if !t.joined[c] {
			return false
		}
	}
	return true
}

// Run joins the configured channels and blocks until ctx is done. The client
// reconnects on its own after network drops.
func (t *Twitch) Run(ctx context.Context, h Handler) error {
	t.mu.Lock()
	t.ctx, t.h = ctx, h
	t.mu.Unlock()

	// Handle context cancellation by closing the client
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		t.connected.Store(false)
		_ = t.client.Disconnect()
	}()

	t.client.Join(t.channels...)
	err := t.client.Connect()
	if err != nil && !errors.Is(err, twitch.ErrClientDisconnected) && ctx.Err() == nil {
		t.connected.Store(false)
		return fmt.Errorf("twitch chat connect: %w", err)
	}
	<-done
	return nil
}

func (t *Twitch) onRoomState(m twitch.RoomStateMessage) {
	id, err := strconv.ParseInt(m.RoomID, 10, 64)
	if err != nil {
		return
	}
	t.learnRoom(id, m.Channel)
	slog.Debug("twitch room joined", slog.String("channel", m.Channel), slog.Int64("room_id", id), slog.String("component", "twitch"))
}

func (t *Twitch) learnRoom(id int64, channel string) {
	login := strings.ToLower(channel)
	t.mu.Lock()
	t.rooms[id] = login
	t.joined[login] = true
	t.mu.Unlock()
}

func (t *Twitch) onPrivateMessage(m twitch.PrivateMessage) {
	t.mu.RLock()
	ctx, h := t.ctx, t.h
	t.mu.RUnlock()
	if h == nil {
		return
	}
	uid, err := strconv.ParseInt(m.User.ID, 10, 64)
	if err != nil {
		return
	}
	room, err := strconv.ParseInt(m.RoomID, 10, 64)
	if err != nil {
		return
	}
	t.learnRoom(room, m.Channel)

	name := m.User.DisplayName
	if name == "" {
		name = m.User.Name
	}
	msg := Message{
		Author:    User{ID: uid, DisplayName: name, Mention: "@" + name},
		ChannelID: room,
		Text:      m.Message,
		FromBot:   strings.EqualFold(m.User.Name, t.username),
	}
	if err := h.Handle(ctx, msg); err != nil {
		slog.Error("handle twitch message", slog.Any("err", err), slog.String("channel", m.Channel), slog.String("component", "twitch"))
	}
}

// channel resolves a room id to a joined channel login.
func (t *Twitch) channel(roomID int64) (string, error) {
	t.mu.RLock()
	login, ok := t.rooms[roomID]
	t.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: room %d not joined", ErrChannelUnavailable, roomID)
	}
	return login, nil
}

func (t *Twitch) send(ctx context.Context, roomID int64, text string) error {
	login, err := t.channel(roomID)
	if err != nil {
		return err
	}
	if !t.connected.Load() {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.say(login, text)
	return nil
}

func (t *Twitch) Appeared(ctx context.Context, a star.Active) error {
	return t.send(ctx, a.ChannelID, appearedText(a))
}

func (t *Twitch) Caught(ctx context.Context, a star.Active, by star.Attempt, reward, total int64) error {
	channelID := by.ChannelID
	if channelID == 0 {
		channelID = a.ChannelID
	}
	return t.send(ctx, channelID, caughtText(by.Mention, reward, total))
}

func (t *Twitch) Faded(ctx context.Context, a star.Active) error {
	return t.send(ctx, a.ChannelID, fadedText())
}

func (t *Twitch) Reply(ctx context.Context, channelID int64, text string) error {
	return t.send(ctx, channelID, text)
}

func (t *Twitch) SendResult(ctx context.Context, channelID int64, r Result) error {
	return t.send(ctx, channelID, resultText(r))
}

// RefreshCommands is a no-op: Twitch chat has no registered commands.
func (t *Twitch) RefreshCommands(ctx context.Context) error { return nil }
