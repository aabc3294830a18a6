package chat

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/onnwee/shooting-star/ledger"
	"github.com/onnwee/shooting-star/star"
)

// Embed colors.
const (
	colorAppeared = 0x00ffff
	colorCaught   = 0x00ff00
	colorFaded    = 0xff6b6b
	colorGold     = 0xffd700
)

const (
	titleAppeared    = "🌠 A Shooting Star Appears!"
	titleCaught      = "🌟 Shooting Star Caught!"
	titleFaded       = "🌠 Shooting Star Fades Away"
	titleBalance     = "💰 Coin Balance"
	titleLeaderboard = "🏆 Coin Leaderboard"

	descAppeared = "The night sky is alight as a shooting star blazes through the heavens! ✨\nCatch it before it fades away and earn some shiny coins! 💰"
	descFaded    = "The shooting star has faded into the night sky... No one caught it this time! 💫"
	emptyBoard   = "No users have earned coins yet!"
)

// windowSeconds is how long a star stays catchable, rounded to whole seconds.
func windowSeconds(a star.Active) int {
	return int(math.Round(a.Deadline.Sub(a.ArmedAt).Seconds()))
}

func catchPrompt(a star.Active) string {
	return fmt.Sprintf("Type `%s` to catch it! 🌟\nHurry, time's running out! ⏳", a.Word)
}

func windowFooter(a star.Active) string {
	return fmt.Sprintf("You have %d seconds to catch it!", windowSeconds(a))
}

func caughtDescription(mention string) string {
	return fmt.Sprintf("Congratulations %s! You caught the shooting star! ✨", mention)
}

func rewardLine(reward, total int64) string {
	return fmt.Sprintf("You earned **%d coins**!\nTotal coins: **%d**", reward, total)
}

func caughtFooter(at time.Time) string {
	return "Caught at " + at.UTC().Format("15:04:05") + " UTC"
}

func balanceLine(mention string, coins int64) string {
	return fmt.Sprintf("%s has **%d coins**!", mention, coins)
}

// Medal returns the leaderboard marker for a 1-based rank.
func Medal(rank int) string {
	switch rank {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		return fmt.Sprintf("%d.", rank)
	}
}

// Plain-text renderings for platforms without embeds. Markdown bold is dropped.

func appearedText(a star.Active) string {
	return fmt.Sprintf("🌠 A shooting star appears! Type %s to catch it and earn coins! You have %d seconds. ⏳", a.Word, windowSeconds(a))
}

func caughtText(mention string, reward, total int64) string {
	return fmt.Sprintf("🌟 %s caught the shooting star and earned %d coins! Total coins: %d 💰", mention, reward, total)
}

func fadedText() string {
	return "💫 The shooting star has faded into the night sky... No one caught it this time!"
}

func resultText(r Result) string {
	switch r.Kind {
	case ResultBalance:
		return strings.ReplaceAll(balanceLine(r.Subject.Mention, r.Coins), "**", "")
	case ResultLeaderboard:
		if len(r.Entries) == 0 {
			return "🏆 " + emptyBoard
		}
		parts := make([]string, len(r.Entries))
		for i, e := range r.Entries {
			parts[i] = fmt.Sprintf("%s %s (%d)", Medal(i+1), e.DisplayName, e.Coins)
		}
		return "🏆 " + strings.Join(parts, " · ")
	default:
		return ""
	}
}

// leaderboardFields renders one "medal name" / "coins" pair per entry.
func leaderboardFields(entries []ledger.Entry) [][2]string {
	out := make([][2]string, len(entries))
	for i, e := range entries {
		out[i] = [2]string{Medal(i+1) + " " + e.DisplayName, fmt.Sprintf("**%d coins**", e.Coins)}
	}
	return out
}
