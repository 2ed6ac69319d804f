// Package push turns incoming push messages into displayed notifications.
//
// Every push passes through a Pipeline: the payload is parsed (a malformed one
// yields a generic fallback), quiet hours defer non-urgent pushes until the
// window ends, a per-type daily ceiling drops excess pushes, and the rest are
// localized and handed to a Displayer. Policy counters and pending pushes are
// persisted as documents in the cache store, so a restarted worker resumes
// with the same state. Redelivery timers are not persisted.
package push
