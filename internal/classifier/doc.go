// Package classifier turns free-form chat messages into structured tool
// calls via an OpenAI-compatible chat-completions endpoint. Natural-language
// understanding lives entirely behind the Classifier interface; the rest of
// the system only ever sees validated tool calls or plain replies.
package classifier
