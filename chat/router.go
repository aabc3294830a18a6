package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/onnwee/shooting-star/ledger"
	"github.com/onnwee/shooting-star/star"
	"github.com/onnwee/shooting-star/telemetry"
)

// LeaderboardSize is how many users the leaderboard shows.
const LeaderboardSize = 10

// User identifies a chat user.
type User struct {
	ID          int64
	DisplayName string
	// Mention is how the platform addresses the user in a message.
	Mention string
}

// Message is an incoming chat message.
type Message struct {
	Author    User
	ChannelID int64
	Text      string
	// FromBot marks messages written by bots, including this one.
	FromBot bool
}

// Command names.
const (
	CommandCoins       = "coins"
	CommandLeaderboard = "leaderboard"
)

// Command is a balance or leaderboard request from a text or slash command.
type Command struct {
	Name      string
	ChannelID int64
	Caller    User
	// Target is the user whose balance is asked for; nil means the caller.
	Target *User
}

// ResultKind tells a platform how to render a Result.
type ResultKind int

const (
	ResultBalance ResultKind = iota + 1
	ResultLeaderboard
)

// Result is the answer to a Command.
type Result struct {
	Kind    ResultKind
	Subject User
	Coins   int64
	Entries []ledger.Entry
}

// Handler consumes what a platform receives.
type Handler interface {
	Handle(ctx context.Context, m Message) error
	Command(ctx context.Context, c Command) (Result, error)
}

// Platform is the bot's connection to one chat service.
type Platform interface {
	star.Notifier
	Name() string
	// Run connects and delivers messages to h until ctx is done.
	Run(ctx context.Context, h Handler) error
	Connected() bool
	Reply(ctx context.Context, channelID int64, text string) error
	SendResult(ctx context.Context, channelID int64, r Result) error
	// RefreshCommands re-registers the platform's slash commands.
	RefreshCommands(ctx context.Context) error
}

// Catcher is the part of the sky the router uses.
type Catcher interface {
	Catch(ctx context.Context, at star.Attempt) (bool, error)
}

// Balances reads the ledger.
type Balances interface {
	Balance(ctx context.Context, userID int64) (int64, error)
	Top(ctx context.Context, n int) ([]ledger.Entry, error)
}

// Router dispatches incoming messages.
type Router struct {
	Platform Platform
	Sky      Catcher
	Ledger   Balances
	// OwnerID may run !sync. Zero disables it.
	OwnerID int64
}

var textCommands = map[string]string{
	"!coins":       CommandCoins,
	"!leaderboard": CommandLeaderboard,
}

// Handle routes one message. Messages that are neither commands nor a
// winning catch are ignored.
func (r *Router) Handle(ctx context.Context, m Message) error {
	if m.FromBot {
		return nil
	}

	if strings.EqualFold(m.Text, "!sync") && r.OwnerID != 0 && m.Author.ID == r.OwnerID {
		return r.sync(ctx, m.ChannelID)
	}

	if fields := strings.Fields(m.Text); len(fields) == 1 {
		if name, ok := textCommands[strings.ToLower(fields[0])]; ok {
			res, err := r.Command(ctx, Command{Name: name, ChannelID: m.ChannelID, Caller: m.Author})
			if err != nil {
				return err
			}
			return r.Platform.SendResult(ctx, m.ChannelID, res)
		}
	}

	won, err := r.Sky.Catch(ctx, star.Attempt{
		UserID:      m.Author.ID,
		DisplayName: m.Author.DisplayName,
		Mention:     m.Author.Mention,
		ChannelID:   m.ChannelID,
		Text:        m.Text,
	})
	if errors.Is(err, star.ErrNotCredited) {
		msg := fmt.Sprintf("⚠️ %s caught the shooting star, but the coins could not be credited. Please let a moderator know.", m.Author.Mention)
		if rerr := r.Platform.Reply(ctx, m.ChannelID, msg); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return err
	}
	if err != nil {
		return err
	}
	if won {
		slog.Debug("catch routed", slog.Int64("user_id", m.Author.ID), slog.String("component", "router"))
	}
	return nil
}

func (r *Router) sync(ctx context.Context, channelID int64) error {
	log := telemetry.LoggerWithCorr(ctx)
	if err := r.Platform.RefreshCommands(ctx); err != nil {
		log.Warn("command sync failed", slog.Any("err", err), slog.String("component", "router"))
		return r.Platform.Reply(ctx, channelID, "❌ Failed to sync command tree: "+err.Error())
	}
	log.Info("commands synced", slog.String("platform", r.Platform.Name()), slog.String("component", "router"))
	return r.Platform.Reply(ctx, channelID, "✅ Command tree synced successfully!")
}

// Command answers a coins or leaderboard request.
func (r *Router) Command(ctx context.Context, c Command) (Result, error) {
	switch c.Name {
	case CommandCoins:
		who := c.Caller
		if c.Target != nil {
			who = *c.Target
		}
		coins, err := r.Ledger.Balance(ctx, who.ID)
		if err != nil {
			return Result{}, err
		}
		return Result{Kind: ResultBalance, Subject: who, Coins: coins}, nil
	case CommandLeaderboard:
		entries, err := r.Ledger.Top(ctx, LeaderboardSize)
		if err != nil {
			return Result{}, err
		}
		return Result{Kind: ResultLeaderboard, Entries: entries}, nil
	default:
		return Result{}, fmt.Errorf("unknown command %q", c.Name)
	}
}
