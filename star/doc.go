// Package star runs the shooting star game: the event clock that walks the
// day's schedule and the sky that holds the one armed star.
//
// Flow: Clock.Tick loads (or generates) today's schedule, picks the first
// due event that has not been handed out, marks it completed, persists the
// schedule and arms the Sky. The Sky announces the star and starts a deadline
// timer. Inbound chat messages are offered to Sky.Catch; the first one that
// matches the word disarms the star and is credited. If the deadline passes
// first the star fades and nobody is credited.
//
// Only one star is armed at a time. While a star is armed the clock leaves
// the next due event untouched, so it fires on the first tick after the sky
// is idle again.
package star
