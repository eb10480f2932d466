// ABOUTME: User-visible strings for every reply, prompt, and button label
// ABOUTME: Kept in one place so wording changes never touch handler logic

package engine

import "github.com/calgate/calgate/internal/gcal"

// Replies to direct commands and dispatcher notifications.
const (
	MsgHelp = `Google Calendar sharing manager

Commands:
/start - open the button menu
/help - show this help
/show_calendars - list your calendars
/show_share <calendar> - list who can see the calendar
/add_share <calendar> <e-mail> <role> - grant e-mail access to the calendar
/delete_share <calendar> <e-mail> - revoke e-mail access to the calendar
/revoke_authorization - revoke the bot's access to Google Calendar`

	MsgUnknownCommand = "Command is not recognized"
	MsgKeyboardActive = "Another keyboard is still active"
	MsgInvalidArgNum  = "Invalid number of arguments, expected %d"
	MsgAuthURL        = "To authorize access to Google Calendar please follow the link: %s"
	MsgAuthComplete   = "Authorization complete"
	MsgAuthDenied     = "Calendar access was not granted"
	MsgCalendarError  = "Calendar not found: %s"
	MsgUserAdded      = "User %s was granted %q access to calendar %s"
	MsgUserDeleted    = "Revoked access of user %s to calendar %s"
	MsgEmailInvalid   = "Invalid e-mail format"
	MsgRoleInvalid    = "Invalid role, allowed values: %s"
	MsgRevokeAuth     = "Bot authorization revoked. Send /start to receive a new authorization link"
	MsgNoCalendars    = "You have no calendars"
	MsgNoShares       = "Nobody else has access to this calendar"
)

// Dialogue prompts rendered on the keyboard message.
const (
	PromptSelectCalendar = "Choose a calendar"
	PromptChooseAction   = "Choose an action for calendar %s"
	PromptShareEmail     = "Enter the e-mail that should get access to calendar %s"
	PromptDeleteEmail    = "Enter the e-mail whose access to calendar %s should be revoked"
	PromptChooseRole     = "Choose the access level for user %s on calendar %s"
	PromptNotEmail       = "The input must be an e-mail address"
)

// Inline button labels.
const (
	ButtonStart      = "Main menu"
	ButtonBack       = "Back"
	ButtonFinish     = "Finish"
	ButtonShowShare  = "Show access"
	ButtonAddShare   = "Grant access"
	ButtonDelShare   = "Revoke access"
	ButtonRevokeAuth = "Revoke authorization"
	ButtonFreeBusy   = "Read access (free/busy only)"
	ButtonReader     = "Read access"
	ButtonWriter     = "Write access"
)

// RoleLabels maps provider role identifiers to the wording shown in chat.
var RoleLabels = map[string]string{
	gcal.RoleFreeBusyReader: "free/busy only",
	gcal.RoleReader:         "read",
	gcal.RoleWriter:         "write",
}

// aclEntryFormat renders one line of a sharing list.
const aclEntryFormat = "%s: %s"
