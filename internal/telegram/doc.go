// Package telegram is a minimal Telegram Bot API client covering exactly
// what the chat router needs: long-polling for updates and sending text
// messages. No third-party SDK is wrapped; the two calls map directly onto
// the Bot API wire format.
package telegram
