// Package matrix implements the guard Gateway on top of a Matrix homeserver
// using mautrix: challenge prompts are plain messages answered with emoji
// reactions, message deletion is redaction, member removal is a kick, and
// admin roles map from room power levels.
package matrix
