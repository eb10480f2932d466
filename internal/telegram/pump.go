// ABOUTME: Update pump dispatching Telegram updates across a worker pool
// ABOUTME: Updates for one chat always land on the same worker, serializing per-chat handling

package telegram

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/calgate/calgate/internal/engine"
)

// Handler is what the pump needs from the conversation engine.
type Handler interface {
	HandleCommand(ctx context.Context, chatID int64, messageID int, command string, args []string)
	HandleCallback(ctx context.Context, chatID int64, data string)
	HandleText(ctx context.Context, chatID int64, messageID int, text string)
}

// CallbackAnswerer acknowledges callback queries. *Bot implements it.
type CallbackAnswerer interface {
	AnswerCallback(callbackID string)
}

// Pump fans updates out to a fixed pool of workers keyed by chat ID, so no
// two updates for the same chat run concurrently while different chats
// proceed in parallel.
type Pump struct {
	handler  Handler
	answerer CallbackAnswerer
	workers  int
	logger   *slog.Logger
}

// NewPump creates a pump with the given worker count.
func NewPump(handler Handler, answerer CallbackAnswerer, workers int, logger *slog.Logger) *Pump {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pump{
		handler:  handler,
		answerer: answerer,
		workers:  workers,
		logger:   logger.With("component", "pump"),
	}
}

// Run consumes updates until the channel closes or ctx is cancelled, then
// drains the workers and returns.
func (p *Pump) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	lanes := make([]chan tgbotapi.Update, p.workers)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan tgbotapi.Update, 16)
		wg.Add(1)
		go func(lane <-chan tgbotapi.Update) {
			defer wg.Done()
			for update := range lane {
				p.route(ctx, update)
			}
		}(lanes[i])
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("update pump stopping", "reason", ctx.Err())
			p.close(lanes, &wg)
			return
		case update, ok := <-updates:
			if !ok {
				p.close(lanes, &wg)
				return
			}
			chatID, ok := updateChatID(update)
			if !ok {
				continue
			}
			lanes[laneFor(chatID, p.workers)] <- update
		}
	}
}

func (p *Pump) close(lanes []chan tgbotapi.Update, wg *sync.WaitGroup) {
	for _, lane := range lanes {
		close(lane)
	}
	wg.Wait()
}

// route hands one update to the engine. Callback payloads whose handler
// name the engine does not know are dropped here and never dispatched.
func (p *Pump) route(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		p.routeCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		args := strings.Fields(update.Message.CommandArguments())
		p.handler.HandleCommand(ctx, update.Message.Chat.ID, update.Message.MessageID,
			update.Message.Command(), args)
	case update.Message != nil && update.Message.Text != "":
		p.handler.HandleText(ctx, update.Message.Chat.ID, update.Message.MessageID,
			update.Message.Text)
	}
}

func (p *Pump) routeCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if p.answerer != nil {
		p.answerer.AnswerCallback(cb.ID)
	}
	if cb.Message == nil {
		return
	}
	name, _ := engine.SplitPayload(cb.Data)
	if !engine.KnownHandler(name) {
		p.logger.Debug("unmatched callback payload dropped", "handler", name)
		return
	}
	p.handler.HandleCallback(ctx, cb.Message.Chat.ID, cb.Data)
}

func updateChatID(update tgbotapi.Update) (int64, bool) {
	switch {
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		return update.CallbackQuery.Message.Chat.ID, true
	case update.Message != nil:
		return update.Message.Chat.ID, true
	}
	return 0, false
}

// laneFor keys a chat to a worker; group chat IDs are negative, so hash on
// the unsigned value.
func laneFor(chatID int64, workers int) int {
	return int(uint64(chatID) % uint64(workers))
}
