// ABOUTME: Inline keyboard model and the button payload scheme
// ABOUTME: Payloads are "handler#argument" strings matched against the handler names below

package engine

import "strings"

// Button is one inline keyboard button: a visible label and a callback payload.
type Button struct {
	Label string
	Data  string
}

// Keyboard is rows of buttons, rendered under the prompt message.
type Keyboard [][]Button

// PayloadDelimiter separates the handler name from its argument in callback data.
const PayloadDelimiter = "#"

// Callback handler names carried in button payloads.
const (
	HandlerPickCalendar = "pick_calendar"
	HandlerShowShare    = "show_share"
	HandlerAddShare     = "add_share"
	HandlerDeleteShare  = "delete_share"
	HandlerGrantFree    = "grant_freebusy"
	HandlerGrantReader  = "grant_reader"
	HandlerGrantWriter  = "grant_writer"
	HandlerRevokeAuth   = "revoke_auth"
	HandlerStart        = "start"
	HandlerFinish       = "finish"
)

var knownHandlers = map[string]bool{
	HandlerPickCalendar: true,
	HandlerShowShare:    true,
	HandlerAddShare:     true,
	HandlerDeleteShare:  true,
	HandlerGrantFree:    true,
	HandlerGrantReader:  true,
	HandlerGrantWriter:  true,
	HandlerRevokeAuth:   true,
	HandlerStart:        true,
	HandlerFinish:       true,
}

// KnownHandler reports whether a payload's handler name is one the engine
// dispatches. The transport layer drops unmatched payloads instead of
// routing them here.
func KnownHandler(name string) bool {
	return knownHandlers[name]
}

// SplitPayload separates callback data into handler name and argument.
// Payloads without a delimiter carry an empty argument.
func SplitPayload(data string) (handler, arg string) {
	handler, arg, _ = strings.Cut(data, PayloadDelimiter)
	return handler, arg
}

func payload(handler, arg string) string {
	if arg == "" {
		return handler
	}
	return handler + PayloadDelimiter + arg
}

// calendarKeyboard lists one button per owned calendar, plus revoke and finish.
func calendarKeyboard(calendars []string) Keyboard {
	var kb Keyboard
	for _, cal := range calendars {
		kb = append(kb, []Button{{Label: cal, Data: payload(HandlerPickCalendar, cal)}})
	}
	kb = append(kb, []Button{
		{Label: ButtonRevokeAuth, Data: payload(HandlerRevokeAuth, "")},
		{Label: ButtonFinish, Data: payload(HandlerFinish, "")},
	})
	return kb
}

// actionKeyboard offers the three sharing actions for one calendar.
func actionKeyboard(calendar string) Keyboard {
	return Keyboard{
		{{Label: ButtonShowShare, Data: payload(HandlerShowShare, calendar)}},
		{{Label: ButtonAddShare, Data: payload(HandlerAddShare, calendar)}},
		{{Label: ButtonDelShare, Data: payload(HandlerDeleteShare, calendar)}},
		{
			{Label: ButtonStart, Data: payload(HandlerStart, "")},
			{Label: ButtonFinish, Data: payload(HandlerFinish, "")},
		},
	}
}

// navKeyboard is shown while expecting text input or after an action result.
func navKeyboard(calendar string) Keyboard {
	return Keyboard{
		{
			{Label: ButtonBack, Data: payload(HandlerPickCalendar, calendar)},
			{Label: ButtonStart, Data: payload(HandlerStart, "")},
		},
		{{Label: ButtonFinish, Data: payload(HandlerFinish, "")}},
	}
}

// roleKeyboard offers the three grantable roles; the chosen e-mail rides in
// the payload so the grant handler does not depend on session fields.
func roleKeyboard(calendar, email string) Keyboard {
	return Keyboard{
		{{Label: ButtonFreeBusy, Data: payload(HandlerGrantFree, email)}},
		{
			{Label: ButtonReader, Data: payload(HandlerGrantReader, email)},
			{Label: ButtonWriter, Data: payload(HandlerGrantWriter, email)},
		},
		{
			{Label: ButtonBack, Data: payload(HandlerPickCalendar, calendar)},
			{Label: ButtonStart, Data: payload(HandlerStart, "")},
		},
		{{Label: ButtonFinish, Data: payload(HandlerFinish, "")}},
	}
}
