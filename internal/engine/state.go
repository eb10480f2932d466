// ABOUTME: Dialogue states and the per-chat session record
// ABOUTME: A missing session is the implicit terminal state

package engine

// State enumerates the dialogue positions of one chat.
type State int

const (
	// StateSelectCalendar waits for the user to pick a calendar from the
	// initial menu.
	StateSelectCalendar State = iota
	// StateSelectAction waits for a sharing action on the picked calendar.
	StateSelectAction
	// StateAwaitShareEmail waits for the e-mail to grant access to.
	StateAwaitShareEmail
	// StateAwaitShareRole waits for the role button after a valid e-mail.
	StateAwaitShareRole
	// StateAwaitDeleteEmail waits for the e-mail whose access is revoked.
	StateAwaitDeleteEmail
)

func (s State) String() string {
	switch s {
	case StateSelectCalendar:
		return "select_calendar"
	case StateSelectAction:
		return "select_action"
	case StateAwaitShareEmail:
		return "await_share_email"
	case StateAwaitShareRole:
		return "await_share_role"
	case StateAwaitDeleteEmail:
		return "await_delete_email"
	default:
		return "unknown"
	}
}

// Session is the ephemeral dialogue state of one chat. It exists only while
// a keyboard is active; reaching the terminal state removes it.
type Session struct {
	State State

	// InitialMessageID is the user's /start message that opened the dialogue.
	InitialMessageID int
	// PromptMessageID is the bot message carrying the active keyboard.
	PromptMessageID int
	// PendingCalendar is set while an e-mail or role input is outstanding.
	PendingCalendar string
}
