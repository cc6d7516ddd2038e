package bot

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/calbot-io/calbot/internal/classifier"
	"github.com/calbot-io/calbot/internal/dispatch"
	"github.com/calbot-io/calbot/internal/logging"
	"github.com/calbot-io/calbot/internal/telegram"
)

const (
	// maxRetries bounds resubmission of retryable backend failures. The
	// dispatch engine itself never retries.
	maxRetries = 2

	retryBackoff = 500 * time.Millisecond
)

// Transport is the chat-system boundary the router polls and replies through.
type Transport interface {
	GetUpdates(ctx context.Context, offset int64) ([]telegram.Update, error)
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Authorizer starts and tears down OAuth flows on user command.
type Authorizer interface {
	BeginAuthorization(ctx context.Context, userID string) (string, error)
	Deauthorize(userID string) error
}

// Dispatcher executes one validated tool call.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *dispatch.ToolCallRequest) *dispatch.Result
}

// Router drives the chat loop: poll, classify, dispatch, reply. It also
// remembers each user's chat so authorization outcomes arriving over HTTP
// can be pushed back into the conversation.
type Router struct {
	transport  Transport
	classifier classifier.Classifier
	authorizer Authorizer
	dispatcher Dispatcher
	logger     *slog.Logger

	mu       sync.RWMutex
	lastChat map[string]int64
}

// NewRouter creates a router.
func NewRouter(transport Transport, cls classifier.Classifier, authorizer Authorizer, dispatcher Dispatcher, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		transport:  transport,
		classifier: cls,
		authorizer: authorizer,
		dispatcher: dispatcher,
		logger:     logger,
		lastChat:   make(map[string]int64),
	}
}

// Run polls for updates until the context is cancelled. Poll errors are
// logged and retried with a short pause so a flaky network never kills the
// loop.
func (r *Router) Run(ctx context.Context) error {
	var offset int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, err := r.transport.GetUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn("update poll failed", logging.Err(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			r.handleMessage(ctx, update.Message)
		}
	}
}

// Notify pushes a message to the last known chat of a user. It is called
// from the HTTP callback handler after an authorization flow completes.
func (r *Router) Notify(ctx context.Context, userID, text string) {
	r.mu.RLock()
	chatID, ok := r.lastChat[userID]
	r.mu.RUnlock()
	if !ok {
		r.logger.Warn("no chat known for user, dropping notification",
			logging.UserHash(userID))
		return
	}
	r.reply(ctx, chatID, text)
}

func (r *Router) handleMessage(ctx context.Context, msg *telegram.Message) {
	userID := strconv.FormatInt(msg.From.ID, 10)
	chatID := msg.Chat.ID

	r.mu.Lock()
	r.lastChat[userID] = chatID
	r.mu.Unlock()

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if strings.HasPrefix(text, "/") {
		r.handleCommand(ctx, userID, chatID, text)
		return
	}

	req, reply, err := r.classifier.Classify(ctx, userID, text)
	if err != nil {
		r.logger.Error("classification failed",
			logging.UserHash(userID),
			logging.Err(err))
		r.reply(ctx, chatID, "I couldn't understand that right now. Please try again.")
		return
	}
	if req == nil {
		if reply == "" {
			reply = helpText
		}
		r.reply(ctx, chatID, reply)
		return
	}

	result := r.dispatchWithRetry(ctx, req)
	r.reply(ctx, chatID, formatResult(result))
}

func (r *Router) handleCommand(ctx context.Context, userID string, chatID int64, text string) {
	cmd := strings.ToLower(strings.Fields(text)[0])
	// Telegram appends the bot name in group chats.
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}

	switch cmd {
	case "/start":
		r.reply(ctx, chatID, startText)
	case "/help":
		r.reply(ctx, chatID, helpText)
	case "/auth":
		url, err := r.authorizer.BeginAuthorization(ctx, userID)
		if err != nil {
			r.logger.Error("failed to start authorization",
				logging.UserHash(userID),
				logging.Err(err))
			r.reply(ctx, chatID, "I couldn't start the authorization flow. Please try again.")
			return
		}
		r.reply(ctx, chatID, "Open this link to connect your Google Calendar (valid for 10 minutes):\n"+url)
	case "/logout":
		if err := r.authorizer.Deauthorize(userID); err != nil {
			r.logger.Error("failed to remove credential",
				logging.UserHash(userID),
				logging.Err(err))
			r.reply(ctx, chatID, "I couldn't disconnect your calendar. Please try again.")
			return
		}
		r.reply(ctx, chatID, "Your Google Calendar is disconnected and stored credentials are deleted.")
	default:
		r.reply(ctx, chatID, "Unknown command. "+helpText)
	}
}

// dispatchWithRetry resubmits retryable backend failures with a short
// backoff, at most maxRetries times.
func (r *Router) dispatchWithRetry(ctx context.Context, req *dispatch.ToolCallRequest) *dispatch.Result {
	result := r.dispatcher.Dispatch(ctx, req)
	for attempt := 0; attempt < maxRetries; attempt++ {
		if result.Status != dispatch.StatusBackendError || !result.Retryable {
			return result
		}
		select {
		case <-ctx.Done():
			return result
		case <-time.After(retryBackoff << attempt):
		}
		result = r.dispatcher.Dispatch(ctx, req)
	}
	return result
}

func (r *Router) reply(ctx context.Context, chatID int64, text string) {
	if err := r.transport.SendMessage(ctx, chatID, text); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		r.logger.Error("failed to send reply",
			slog.Int64("chat_id", chatID),
			logging.Err(err))
	}
}
