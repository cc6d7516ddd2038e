// Package bot routes chat messages between the Telegram transport, the
// intent classifier, the authorization coordinator, and the tool dispatch
// engine. It owns the user-facing text and the retry policy for retryable
// backend failures; everything below it speaks structured types.
package bot
