// Package guard contains the entry-gating core: the dispatcher that reacts to
// gateway events with the captcha state machine, and the sweeper that expires
// unanswered challenges.
//
// # State Machine
//
// Per (user, chat) pair:
//
//	NEW → CHALLENGE_ISSUED → VERIFIED (correct response or admin override)
//	                       → REMOVED  (expiry sweep)
//
// The dispatcher and sweeper share the session registry and the store; they
// never cache either. At most one of response resolution, expiry resolution
// and admin override wins for a given session, enforced by the registry's
// at-most-once removal.
//
// # Gateway
//
// The messaging transport is consumed through the Gateway interface. Gateway
// failures are logged and abandoned for the current cycle; the sweeper
// retries on its next cycle, the dispatcher on the next inbound event.
package guard
