// ABOUTME: Dispatcher drains the handoff queue and resolves authorization outcomes
// ABOUTME: Consumes correlation tokens, persists credentials, and notifies chats

package handoff

import (
	"context"
	"log/slog"

	"github.com/calgate/calgate/internal/engine"
)

// TokenConsumer resolves a correlation token to the chat that issued it.
type TokenConsumer interface {
	Consume(token string) (int64, error)
}

// CredentialCreator persists a credential for a chat.
type CredentialCreator interface {
	Create(ctx context.Context, chatID int64, blob []byte) error
}

// Notifier delivers a plain text message to a chat.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

// Dispatcher is the single long-lived consumer of the handoff queue. It
// resolves each outcome against the correlation store, persists granted
// credentials, and tells the chat how its authorization ended.
type Dispatcher struct {
	queue    *Queue
	tokens   TokenConsumer
	store    CredentialCreator
	notifier Notifier
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher draining the given queue.
func NewDispatcher(queue *Queue, tokens TokenConsumer, store CredentialCreator, notifier Notifier, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		queue:    queue,
		tokens:   tokens,
		store:    store,
		notifier: notifier,
		logger:   logger.With("component", "dispatcher"),
	}
}

// Run processes outcomes until the Shutdown sentinel arrives. No outcome,
// however malformed, and no store or notification failure stops the loop;
// one bad message must not cost every later user their notification.
func (d *Dispatcher) Run(ctx context.Context) {
	// Only the sentinel ends this loop. Outcomes already queued when the
	// serve context is cancelled must still be persisted and delivered, so
	// store and notifier calls run detached from that cancellation.
	ctx = context.WithoutCancel(ctx)

	d.logger.Info("handoff dispatcher started")

	for outcome := range d.queue.ch {
		switch outcome.Kind {
		case KindShutdown:
			d.logger.Info("handoff dispatcher stopping")
			return
		case KindGranted:
			d.handleGranted(ctx, outcome)
		case KindDenied:
			d.handleDenied(ctx, outcome)
		default:
			d.logger.Error("unknown outcome kind", "kind", int(outcome.Kind))
		}
	}
}

func (d *Dispatcher) handleGranted(ctx context.Context, outcome Outcome) {
	chatID, err := d.tokens.Consume(outcome.Token)
	if err != nil {
		// Stale or replayed token: no chat is identifiable, nothing to notify.
		d.logger.Error("no pending authorization for token, likely an old link", "error", err)
		return
	}

	if err := d.store.Create(ctx, chatID, outcome.Credential); err != nil {
		d.logger.Error("persisting credential failed", "chat_id", chatID, "error", err)
		return
	}

	d.logger.Info("authorization granted", "chat_id", chatID)
	if err := d.notifier.Notify(ctx, chatID, engine.MsgAuthComplete); err != nil {
		d.logger.Error("notifying chat failed", "chat_id", chatID, "error", err)
	}
}

func (d *Dispatcher) handleDenied(ctx context.Context, outcome Outcome) {
	chatID, err := d.tokens.Consume(outcome.Token)
	if err != nil {
		d.logger.Error("no pending authorization for token, likely an old link", "error", err)
		return
	}

	d.logger.Info("authorization denied by user", "chat_id", chatID)
	if err := d.notifier.Notify(ctx, chatID, engine.MsgAuthDenied); err != nil {
		d.logger.Error("notifying chat failed", "chat_id", chatID, "error", err)
	}
}
