// Package session tracks outstanding captcha challenges in memory, one per
// (user, chat) pair, with at-most-once removal under concurrent access.
package session
