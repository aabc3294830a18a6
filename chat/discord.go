package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cenkalti/backoff/v5"

	"github.com/onnwee/shooting-star/star"
)

const starImageName = "shooting_star.png"

// slashCommands are registered per guild by RefreshCommands.
var slashCommands = []*discordgo.ApplicationCommand{
	{
		Name:        CommandCoins,
		Description: "Check your coin balance",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        "user",
				Description: "Whose balance to show (leave blank for your own)",
				Required:    false,
			},
		},
	},
	{
		Name:        CommandLeaderboard,
		Description: "Show the top 10 users by coins",
	},
}

// Discord is the discordgo-backed Platform.
type Discord struct {
	s *discordgo.Session
	// imagePath is attached to star announcements when set.
	imagePath string

	connected atomic.Bool
	mu        sync.RWMutex
	ctx       context.Context
	h         Handler
}

// NewDiscord creates a session for token. Nothing connects until Run.
func NewDiscord(token, imagePath string) (*Discord, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent | discordgo.IntentsGuilds
	d := &Discord{s: s, imagePath: imagePath, ctx: context.Background()}

	s.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		d.connected.Store(true)
		slog.Info("discord ready", slog.String("user", r.User.Username), slog.Int("guilds", len(r.Guilds)), slog.String("component", "discord"))
	})
	s.AddHandler(func(s *discordgo.Session, _ *discordgo.Disconnect) {
		d.connected.Store(false)
		slog.Warn("discord disconnected", slog.String("component", "discord"))
	})
	s.AddHandler(func(s *discordgo.Session, _ *discordgo.Resumed) {
		d.connected.Store(true)
	})
	s.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		d.onMessage(m)
	})
	s.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		d.onInteraction(i)
	})
	return d, nil
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Connected() bool { return d.connected.Load() }

// Run opens the gateway, retrying transient failures, and blocks until ctx is done.
func (d *Discord) Run(ctx context.Context, h Handler) error {
	d.mu.Lock()
	d.ctx, d.h = ctx, h
	d.mu.Unlock()

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := d.s.Open()
		if err != nil {
			slog.Warn("discord open failed", slog.Any("err", err), slog.String("component", "discord"))
			if !IsRetryableError(err) {
				return struct{}{}, backoff.Permanent(err)
			}
		}
		return struct{}{}, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(5*time.Minute))
	if err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	<-ctx.Done()
	d.connected.Store(false)
	if err := d.s.Close(); err != nil {
		slog.Warn("discord close", slog.Any("err", err), slog.String("component", "discord"))
	}
	return nil
}

func (d *Discord) handler() (context.Context, Handler) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ctx, d.h
}

func (d *Discord) onMessage(m *discordgo.MessageCreate) {
	ctx, h := d.handler()
	if h == nil || m.Author == nil {
		return
	}
	if d.s.State != nil && d.s.State.User != nil && m.Author.ID == d.s.State.User.ID {
		return
	}
	msg, err := discordMessage(m)
	if err != nil {
		slog.Debug("discord message skipped", slog.Any("err", err), slog.String("component", "discord"))
		return
	}
	if err := h.Handle(ctx, msg); err != nil {
		slog.Error("handle discord message", slog.Any("err", err), slog.Int64("channel_id", msg.ChannelID), slog.String("component", "discord"))
	}
}

func discordMessage(m *discordgo.MessageCreate) (Message, error) {
	uid, err := parseSnowflake(m.Author.ID)
	if err != nil {
		return Message{}, err
	}
	cid, err := parseSnowflake(m.ChannelID)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Author:    User{ID: uid, DisplayName: displayName(m.Member, m.Author), Mention: m.Author.Mention()},
		ChannelID: cid,
		Text:      m.Content,
		FromBot:   m.Author.Bot,
	}, nil
}

func (d *Discord) onInteraction(i *discordgo.InteractionCreate) {
	ctx, h := d.handler()
	if h == nil || i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	cmd, err := discordCommand(i)
	if err != nil {
		slog.Debug("discord interaction skipped", slog.Any("err", err), slog.String("component", "discord"))
		return
	}
	res, err := h.Command(ctx, cmd)
	var data *discordgo.InteractionResponseData
	if err != nil {
		slog.Error("discord command failed", slog.String("command", cmd.Name), slog.Any("err", err), slog.String("component", "discord"))
		data = &discordgo.InteractionResponseData{Content: "❌ Something went wrong, please try again later.", Flags: discordgo.MessageFlagsEphemeral}
	} else {
		data = &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{resultEmbed(res)}}
	}
	if err := d.s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}, discordgo.WithContext(ctx)); err != nil {
		slog.Warn("discord interaction respond", slog.Any("err", err), slog.String("component", "discord"))
	}
}

func discordCommand(i *discordgo.InteractionCreate) (Command, error) {
	data := i.ApplicationCommandData()
	u := i.User
	if i.Member != nil && i.Member.User != nil {
		u = i.Member.User
	}
	if u == nil {
		return Command{}, errors.New("interaction without user")
	}
	uid, err := parseSnowflake(u.ID)
	if err != nil {
		return Command{}, err
	}
	cid, err := parseSnowflake(i.ChannelID)
	if err != nil {
		return Command{}, err
	}
	cmd := Command{
		Name:      data.Name,
		ChannelID: cid,
		Caller:    User{ID: uid, DisplayName: displayName(i.Member, u), Mention: u.Mention()},
	}
	for _, opt := range data.Options {
		if opt.Type != discordgo.ApplicationCommandOptionUser || opt.Name != "user" {
			continue
		}
		id, _ := opt.Value.(string)
		tid, err := parseSnowflake(id)
		if err != nil {
			return Command{}, err
		}
		target := User{ID: tid, Mention: "<@" + id + ">"}
		if data.Resolved != nil {
			if ru, ok := data.Resolved.Users[id]; ok {
				target.DisplayName = displayName(data.Resolved.Members[id], ru)
			}
		}
		cmd.Target = &target
	}
	return cmd, nil
}

func displayName(m *discordgo.Member, u *discordgo.User) string {
	if m != nil && m.Nick != "" {
		return m.Nick
	}
	if u == nil {
		return ""
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

func parseSnowflake(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid discord id %q: %w", id, err)
	}
	return n, nil
}

func snowflake(id int64) string { return strconv.FormatInt(id, 10) }

// discordErr maps missing or forbidden channels to ErrChannelUnavailable.
func discordErr(channelID int64, err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		switch rest.Response.StatusCode {
		case http.StatusForbidden, http.StatusNotFound:
			return fmt.Errorf("%w: %d: %w", ErrChannelUnavailable, channelID, err)
		}
	}
	return err
}

func (d *Discord) send(ctx context.Context, channelID int64, msg func() (*discordgo.MessageSend, error)) error {
	if !d.Connected() {
		return ErrNotConnected
	}
	return withRetry(ctx, func() error {
		data, err := msg()
		if err != nil {
			return backoff.Permanent(err)
		}
		_, err = d.s.ChannelMessageSendComplex(snowflake(channelID), data, discordgo.WithContext(ctx))
		for _, f := range data.Files {
			if c, ok := f.Reader.(*os.File); ok {
				_ = c.Close()
			}
		}
		return discordErr(channelID, err)
	})
}

func (d *Discord) Appeared(ctx context.Context, a star.Active) error {
	return d.send(ctx, a.ChannelID, func() (*discordgo.MessageSend, error) {
		embed := &discordgo.MessageEmbed{
			Title:       titleAppeared,
			Description: descAppeared,
			Color:       colorAppeared,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "🌟 Catch the Shooting Star!", Value: catchPrompt(a)},
			},
			Footer: &discordgo.MessageEmbedFooter{Text: windowFooter(a)},
		}
		data := &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}
		if d.imagePath == "" {
			return data, nil
		}
		f, err := os.Open(d.imagePath)
		if err != nil {
			// A missing image only costs the picture.
			slog.Warn("star image unavailable", slog.String("path", d.imagePath), slog.Any("err", err), slog.String("component", "discord"))
			return data, nil
		}
		data.Files = []*discordgo.File{{Name: starImageName, ContentType: contentType(d.imagePath), Reader: f}}
		embed.Image = &discordgo.MessageEmbedImage{URL: "attachment://" + starImageName}
		return data, nil
	})
}

func contentType(path string) string {
	switch filepath.Ext(path) {
	case ".gif":
		return "image/gif"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "image/png"
	}
}

func (d *Discord) Caught(ctx context.Context, a star.Active, by star.Attempt, reward, total int64) error {
	channelID := by.ChannelID
	if channelID == 0 {
		channelID = a.ChannelID
	}
	embed := &discordgo.MessageEmbed{
		Title:       titleCaught,
		Description: caughtDescription(by.Mention),
		Color:       colorCaught,
		Fields:      []*discordgo.MessageEmbedField{{Name: "💰 Reward", Value: rewardLine(reward, total)}},
		Footer:      &discordgo.MessageEmbedFooter{Text: caughtFooter(time.Now())},
	}
	return d.sendEmbed(ctx, channelID, embed)
}

func (d *Discord) Faded(ctx context.Context, a star.Active) error {
	return d.sendEmbed(ctx, a.ChannelID, &discordgo.MessageEmbed{Title: titleFaded, Description: descFaded, Color: colorFaded})
}

func (d *Discord) sendEmbed(ctx context.Context, channelID int64, embed *discordgo.MessageEmbed) error {
	return d.send(ctx, channelID, func() (*discordgo.MessageSend, error) {
		return &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}, nil
	})
}

func (d *Discord) Reply(ctx context.Context, channelID int64, text string) error {
	return d.send(ctx, channelID, func() (*discordgo.MessageSend, error) {
		return &discordgo.MessageSend{Content: text}, nil
	})
}

func (d *Discord) SendResult(ctx context.Context, channelID int64, r Result) error {
	return d.sendEmbed(ctx, channelID, resultEmbed(r))
}

func resultEmbed(r Result) *discordgo.MessageEmbed {
	switch r.Kind {
	case ResultBalance:
		return &discordgo.MessageEmbed{Title: titleBalance, Description: balanceLine(r.Subject.Mention, r.Coins), Color: colorGold}
	case ResultLeaderboard:
		if len(r.Entries) == 0 {
			return &discordgo.MessageEmbed{Title: "🏆 Leaderboard", Description: emptyBoard, Color: colorGold}
		}
		embed := &discordgo.MessageEmbed{Title: titleLeaderboard, Color: colorGold}
		for _, f := range leaderboardFields(r.Entries) {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: f[0], Value: f[1]})
		}
		return embed
	default:
		return &discordgo.MessageEmbed{Description: "Unknown command."}
	}
}

// RefreshCommands overwrites the slash commands in every guild the bot is in.
func (d *Discord) RefreshCommands(ctx context.Context) error {
	if d.s.State == nil || d.s.State.User == nil {
		return ErrNotConnected
	}
	var errs []error
	synced := 0
	for _, g := range d.s.State.Guilds {
		if _, err := d.s.ApplicationCommandBulkOverwrite(d.s.State.User.ID, g.ID, slashCommands, discordgo.WithContext(ctx)); err != nil {
			errs = append(errs, fmt.Errorf("guild %s: %w", g.ID, err))
			continue
		}
		synced++
	}
	slog.Info("slash commands synced", slog.Int("guilds", synced), slog.Int("failed", len(errs)), slog.String("component", "discord"))
	return errors.Join(errs...)
}
