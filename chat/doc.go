// Package chat connects the star game to a chat platform.
//
// A Platform is the bot's presence on Discord or Twitch: it announces the
// star lifecycle (it is the star.Notifier), answers balance and leaderboard
// commands, and feeds every incoming message to a Handler.
//
// Router is the Handler. For each message it checks, in order:
//   - the owner-only !sync text command, which re-registers platform commands;
//   - the text commands !coins and !leaderboard;
//   - otherwise the message is offered to the sky as a catch attempt.
//
// Discord also exposes /coins [user] and /leaderboard as slash commands; the
// adapter turns those into Commands and renders the Router's Result as an
// embed. Twitch has no slash commands, so only the text forms exist there.
//
// Sends to a channel the bot cannot reach fail with ErrChannelUnavailable.
// Transient platform errors are retried with backoff; ClassifyError decides
// which is which.
package chat
