// ABOUTME: Per-chat dialogue state machine for calendar sharing
// ABOUTME: Buttons and text input move a session through an explicit transition table

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/calgate/calgate/internal/correlate"
	"github.com/calgate/calgate/internal/gcal"
)

// ChatClient defines what the engine needs from the chat platform.
//
// Edit must be idempotent: editing a message to content it already has
// reports success, not an error.
type ChatClient interface {
	Send(ctx context.Context, chatID int64, text string) (int, error)
	SendKeyboard(ctx context.Context, chatID int64, text string, kb Keyboard) (int, error)
	Reply(ctx context.Context, chatID int64, replyToID int, text string) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, text string, kb Keyboard) error
	ClearKeyboard(ctx context.Context, chatID int64, messageID int) error
	Delete(ctx context.Context, chatID int64, messageID int) error
}

// CalendarGateway defines what the engine needs from the calendar provider.
type CalendarGateway interface {
	AuthLink(state string) string
	Calendars(ctx context.Context, chatID int64) ([]string, error)
	ACL(ctx context.Context, chatID int64, calendarID string) ([]gcal.ACLEntry, error)
	Grant(ctx context.Context, chatID int64, calendarID, email, role string) error
	Revoke(ctx context.Context, chatID int64, calendarID, email string) error
}

// CredentialStore defines what the engine needs from credential storage.
type CredentialStore interface {
	Exists(ctx context.Context, chatID int64) (bool, error)
	Delete(ctx context.Context, chatID int64) error
}

// TokenRegistrar records an issued authorization token for a chat. The
// handoff dispatcher consumes the entry when the callback arrives.
type TokenRegistrar interface {
	Register(token string, chatID int64) error
}

// Engine drives the per-chat conversation. The hosting dispatch layer
// serializes updates per chat, so session fields are only ever touched by
// one goroutine at a time; the mutex guards the session map itself.
type Engine struct {
	chat   ChatClient
	cal    CalendarGateway
	creds  CredentialStore
	tokens TokenRegistrar
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[int64]*Session
}

// New creates a conversation engine.
func New(chat ChatClient, cal CalendarGateway, creds CredentialStore, tokens TokenRegistrar, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		chat:     chat,
		cal:      cal,
		creds:    creds,
		tokens:   tokens,
		logger:   logger.With("component", "engine"),
		sessions: make(map[int64]*Session),
	}
}

// allowedEvents lists, per state, the callback handlers that are defined
// transitions. Everything else is a no-op.
var allowedEvents = map[State]map[string]bool{
	StateSelectCalendar: {
		HandlerPickCalendar: true,
		HandlerRevokeAuth:   true,
		HandlerFinish:       true,
	},
	StateSelectAction: {
		HandlerShowShare:    true,
		HandlerAddShare:     true,
		HandlerDeleteShare:  true,
		HandlerPickCalendar: true,
		HandlerStart:        true,
		HandlerFinish:       true,
	},
	StateAwaitShareEmail: {
		HandlerPickCalendar: true,
		HandlerStart:        true,
		HandlerFinish:       true,
	},
	StateAwaitShareRole: {
		HandlerGrantFree:    true,
		HandlerGrantReader:  true,
		HandlerGrantWriter:  true,
		HandlerPickCalendar: true,
		HandlerStart:        true,
		HandlerFinish:       true,
	},
	StateAwaitDeleteEmail: {
		HandlerPickCalendar: true,
		HandlerStart:        true,
		HandlerFinish:       true,
	},
}

// HandleCommand routes a typed /command with its whitespace-split arguments.
func (e *Engine) HandleCommand(ctx context.Context, chatID int64, messageID int, command string, args []string) {
	switch command {
	case "start":
		e.cmdStart(ctx, chatID, messageID)
	case "help":
		e.send(ctx, chatID, MsgHelp)
	case "show_calendars":
		e.cmdShowCalendars(ctx, chatID)
	case "show_share":
		e.cmdShowShare(ctx, chatID, args)
	case "add_share":
		e.cmdAddShare(ctx, chatID, args)
	case "delete_share":
		e.cmdDeleteShare(ctx, chatID, args)
	case "revoke_authorization":
		e.cmdRevokeAuth(ctx, chatID)
	default:
		e.send(ctx, chatID, MsgUnknownCommand)
	}
}

// HandleCallback routes an inline button press. Callbacks for chats without
// an active session, and handlers not defined for the session's state, are
// dropped without touching the session.
func (e *Engine) HandleCallback(ctx context.Context, chatID int64, data string) {
	handler, arg := SplitPayload(data)

	s := e.session(chatID)
	if s == nil {
		e.logger.Debug("callback without active session", "chat_id", chatID, "handler", handler)
		return
	}
	if !allowedEvents[s.State][handler] {
		e.logger.Debug("callback not defined for state",
			"chat_id", chatID, "state", s.State, "handler", handler)
		return
	}

	switch handler {
	case HandlerStart:
		e.showCalendarMenu(ctx, chatID, s)
	case HandlerFinish:
		e.finish(ctx, chatID, s)
	case HandlerPickCalendar:
		e.showActionMenu(ctx, chatID, s, arg)
	case HandlerShowShare:
		e.showShare(ctx, chatID, s, arg)
	case HandlerAddShare:
		e.promptEmail(ctx, chatID, s, arg, StateAwaitShareEmail, PromptShareEmail)
	case HandlerDeleteShare:
		e.promptEmail(ctx, chatID, s, arg, StateAwaitDeleteEmail, PromptDeleteEmail)
	case HandlerGrantFree:
		e.grantRole(ctx, chatID, s, arg, gcal.RoleFreeBusyReader)
	case HandlerGrantReader:
		e.grantRole(ctx, chatID, s, arg, gcal.RoleReader)
	case HandlerGrantWriter:
		e.grantRole(ctx, chatID, s, arg, gcal.RoleWriter)
	case HandlerRevokeAuth:
		e.revokeAndFinish(ctx, chatID, s)
	}
}

// HandleText routes free text. It only matters while a session awaits an
// e-mail; everywhere else it is ignored.
func (e *Engine) HandleText(ctx context.Context, chatID int64, messageID int, text string) {
	s := e.session(chatID)
	if s == nil {
		return
	}
	switch s.State {
	case StateAwaitShareEmail:
		e.shareEmailInput(ctx, chatID, s, messageID, text)
	case StateAwaitDeleteEmail:
		e.deleteEmailInput(ctx, chatID, s, messageID, text)
	default:
		// Free text is not an event in the other states.
	}
}

// ActiveSessions reports the number of chats with an open dialogue.
func (e *Engine) ActiveSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// cmdStart opens the dialogue. With no stored credential it issues an
// authorization link instead and leaves no session behind.
func (e *Engine) cmdStart(ctx context.Context, chatID int64, messageID int) {
	if s := e.session(chatID); s != nil {
		// A keyboard is already active; point the user at it.
		if _, err := e.chat.Reply(ctx, chatID, s.PromptMessageID, MsgKeyboardActive); err != nil {
			e.logger.Error("keyboard-active reply failed", "chat_id", chatID, "error", err)
		}
		return
	}

	exists, err := e.creds.Exists(ctx, chatID)
	if err != nil {
		e.logger.Error("credential lookup failed", "chat_id", chatID, "error", err)
		return
	}
	if !exists {
		token := correlate.NewToken()
		if err := e.tokens.Register(token, chatID); err != nil {
			e.logger.Error("token registration failed", "chat_id", chatID, "error", err)
			return
		}
		e.send(ctx, chatID, fmt.Sprintf(MsgAuthURL, e.cal.AuthLink(token)))
		e.logger.Info("authorization link issued", "chat_id", chatID)
		return
	}

	calendars, err := e.cal.Calendars(ctx, chatID)
	if err != nil {
		e.send(ctx, chatID, fmt.Sprintf(MsgCalendarError, gcal.ErrorDetail(err)))
		return
	}
	promptID, err := e.chat.SendKeyboard(ctx, chatID, PromptSelectCalendar, calendarKeyboard(calendars))
	if err != nil {
		e.logger.Error("sending calendar menu failed", "chat_id", chatID, "error", err)
		return
	}
	e.putSession(chatID, &Session{
		State:            StateSelectCalendar,
		InitialMessageID: messageID,
		PromptMessageID:  promptID,
	})
}

// showCalendarMenu re-renders the initial menu in place (start button).
func (e *Engine) showCalendarMenu(ctx context.Context, chatID int64, s *Session) {
	calendars, err := e.cal.Calendars(ctx, chatID)
	if err != nil {
		e.edit(ctx, chatID, s.PromptMessageID, fmt.Sprintf(MsgCalendarError, gcal.ErrorDetail(err)), calendarKeyboard(nil))
		return
	}
	e.edit(ctx, chatID, s.PromptMessageID, PromptSelectCalendar, calendarKeyboard(calendars))
	s.State = StateSelectCalendar
	s.PendingCalendar = ""
}

// showActionMenu renders the action keyboard for one calendar.
func (e *Engine) showActionMenu(ctx context.Context, chatID int64, s *Session, calendar string) {
	e.edit(ctx, chatID, s.PromptMessageID, fmt.Sprintf(PromptChooseAction, calendar), actionKeyboard(calendar))
	s.State = StateSelectAction
	s.PendingCalendar = ""
}

// showShare lists the calendar's sharing entries in place.
func (e *Engine) showShare(ctx context.Context, chatID int64, s *Session, calendar string) {
	text := ""
	entries, err := e.cal.ACL(ctx, chatID, calendar)
	if err != nil {
		text = fmt.Sprintf(MsgCalendarError, gcal.ErrorDetail(err))
	} else {
		text = formatACL(entries)
	}
	e.edit(ctx, chatID, s.PromptMessageID, text, navKeyboard(calendar))
}

// promptEmail asks for an e-mail address and parks the calendar name on the
// session until the input arrives.
func (e *Engine) promptEmail(ctx context.Context, chatID int64, s *Session, calendar string, next State, prompt string) {
	s.PendingCalendar = calendar
	e.edit(ctx, chatID, s.PromptMessageID, fmt.Sprintf(prompt, calendar), navKeyboard(calendar))
	s.State = next
}

// shareEmailInput validates the typed e-mail and moves on to role selection.
// The user's message is deleted either way; invalid input re-prompts without
// changing state.
func (e *Engine) shareEmailInput(ctx context.Context, chatID int64, s *Session, messageID int, text string) {
	e.deleteMessage(ctx, chatID, messageID)

	if !validEmail(text) {
		e.edit(ctx, chatID, s.PromptMessageID, PromptNotEmail, navKeyboard(s.PendingCalendar))
		return
	}
	e.edit(ctx, chatID, s.PromptMessageID,
		fmt.Sprintf(PromptChooseRole, text, s.PendingCalendar),
		roleKeyboard(s.PendingCalendar, text))
	s.State = StateAwaitShareRole
}

// deleteEmailInput validates the typed e-mail and revokes that user's access.
func (e *Engine) deleteEmailInput(ctx context.Context, chatID int64, s *Session, messageID int, text string) {
	e.deleteMessage(ctx, chatID, messageID)

	if !validEmail(text) {
		e.edit(ctx, chatID, s.PromptMessageID, PromptNotEmail, navKeyboard(s.PendingCalendar))
		return
	}

	calendar := s.PendingCalendar
	result := ""
	if err := e.cal.Revoke(ctx, chatID, calendar, text); err != nil {
		result = fmt.Sprintf(MsgCalendarError, gcal.ErrorDetail(err))
	} else {
		result = fmt.Sprintf(MsgUserDeleted, text, calendar)
	}
	e.edit(ctx, chatID, s.PromptMessageID, result, navKeyboard(calendar))
	s.PendingCalendar = ""
	s.State = StateSelectAction
}

// grantRole grants the chosen role to the e-mail carried in the payload.
func (e *Engine) grantRole(ctx context.Context, chatID int64, s *Session, email, role string) {
	calendar := s.PendingCalendar
	result := ""
	if err := e.cal.Grant(ctx, chatID, calendar, email, role); err != nil {
		result = fmt.Sprintf(MsgCalendarError, gcal.ErrorDetail(err))
	} else {
		result = fmt.Sprintf(MsgUserAdded, email, role, calendar)
	}
	e.edit(ctx, chatID, s.PromptMessageID, result, navKeyboard(calendar))
	s.PendingCalendar = ""
	s.State = StateSelectAction
}

// revokeAndFinish deletes the stored credential and tears the dialogue down.
func (e *Engine) revokeAndFinish(ctx context.Context, chatID int64, s *Session) {
	if err := e.creds.Delete(ctx, chatID); err != nil {
		e.logger.Error("credential delete failed", "chat_id", chatID, "error", err)
		return
	}
	e.send(ctx, chatID, MsgRevokeAuth)
	e.finish(ctx, chatID, s)
}

// finish tears down the dialogue: clear the keyboard, delete the prompt and
// the initiating message, drop the session. Failures are logged and the
// teardown continues; the session is removed regardless.
func (e *Engine) finish(ctx context.Context, chatID int64, s *Session) {
	if err := e.chat.ClearKeyboard(ctx, chatID, s.PromptMessageID); err != nil {
		e.logger.Warn("clearing keyboard failed", "chat_id", chatID, "error", err)
	}
	e.deleteMessage(ctx, chatID, s.PromptMessageID)
	e.deleteMessage(ctx, chatID, s.InitialMessageID)
	e.dropSession(chatID)
	e.logger.Debug("dialogue finished", "chat_id", chatID)
}

func (e *Engine) session(chatID int64) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[chatID]
}

func (e *Engine) putSession(chatID int64, s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessions[chatID] = s
}

func (e *Engine) dropSession(chatID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, chatID)
}

func (e *Engine) send(ctx context.Context, chatID int64, text string) {
	if _, err := e.chat.Send(ctx, chatID, text); err != nil {
		e.logger.Error("sending message failed", "chat_id", chatID, "error", err)
	}
}

func (e *Engine) edit(ctx context.Context, chatID int64, messageID int, text string, kb Keyboard) {
	if err := e.chat.Edit(ctx, chatID, messageID, text, kb); err != nil {
		e.logger.Error("editing message failed", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}

func (e *Engine) deleteMessage(ctx context.Context, chatID int64, messageID int) {
	if err := e.chat.Delete(ctx, chatID, messageID); err != nil {
		e.logger.Warn("deleting message failed", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}

// formatACL renders sharing entries one per line as "email: role label".
// An empty list renders a fallback line; the Bot API rejects empty text.
func formatACL(entries []gcal.ACLEntry) string {
	if len(entries) == 0 {
		return MsgNoShares
	}
	var b strings.Builder
	for _, entry := range entries {
		label, ok := RoleLabels[entry.Role]
		if !ok {
			label = entry.Role
		}
		fmt.Fprintf(&b, aclEntryFormat+"\n", entry.Email, label)
	}
	return b.String()
}
