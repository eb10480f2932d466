// ABOUTME: Direct command handlers that run outside the dialogue
// ABOUTME: Each validates its own arguments and performs one gateway or store call

package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/calgate/calgate/internal/gcal"
)

func (e *Engine) cmdShowCalendars(ctx context.Context, chatID int64) {
	calendars, err := e.cal.Calendars(ctx, chatID)
	if err != nil {
		e.send(ctx, chatID, fmt.Sprintf(MsgCalendarError, gcal.ErrorDetail(err)))
		return
	}
	if len(calendars) == 0 {
		// The Bot API rejects empty message text.
		e.send(ctx, chatID, MsgNoCalendars)
		return
	}
	e.send(ctx, chatID, strings.Join(calendars, "\n"))
}

func (e *Engine) cmdShowShare(ctx context.Context, chatID int64, args []string) {
	if len(args) != 1 {
		e.send(ctx, chatID, fmt.Sprintf(MsgInvalidArgNum, 1))
		return
	}
	calendar := args[0]

	entries, err := e.cal.ACL(ctx, chatID, calendar)
	if err != nil {
		e.send(ctx, chatID, fmt.Sprintf(MsgCalendarError, gcal.ErrorDetail(err)))
		return
	}
	e.send(ctx, chatID, formatACL(entries))
}

func (e *Engine) cmdAddShare(ctx context.Context, chatID int64, args []string) {
	if len(args) != 3 {
		e.send(ctx, chatID, fmt.Sprintf(MsgInvalidArgNum, 3))
		return
	}
	calendar, email, role := args[0], args[1], args[2]

	if !validEmail(email) {
		e.send(ctx, chatID, MsgEmailInvalid)
		return
	}
	if !gcal.ValidRole(role) {
		e.send(ctx, chatID, fmt.Sprintf(MsgRoleInvalid, strings.Join(gcal.Roles, ", ")))
		return
	}

	if err := e.cal.Grant(ctx, chatID, calendar, email, role); err != nil {
		e.send(ctx, chatID, fmt.Sprintf(MsgCalendarError, gcal.ErrorDetail(err)))
		return
	}
	e.send(ctx, chatID, fmt.Sprintf(MsgUserAdded, email, role, calendar))
}

func (e *Engine) cmdDeleteShare(ctx context.Context, chatID int64, args []string) {
	if len(args) != 2 {
		e.send(ctx, chatID, fmt.Sprintf(MsgInvalidArgNum, 2))
		return
	}
	calendar, email := args[0], args[1]

	if !validEmail(email) {
		e.send(ctx, chatID, MsgEmailInvalid)
		return
	}

	if err := e.cal.Revoke(ctx, chatID, calendar, email); err != nil {
		e.send(ctx, chatID, fmt.Sprintf(MsgCalendarError, gcal.ErrorDetail(err)))
		return
	}
	e.send(ctx, chatID, fmt.Sprintf(MsgUserDeleted, email, calendar))
}

func (e *Engine) cmdRevokeAuth(ctx context.Context, chatID int64) {
	if err := e.creds.Delete(ctx, chatID); err != nil {
		e.logger.Error("credential delete failed", "chat_id", chatID, "error", err)
		return
	}
	e.send(ctx, chatID, MsgRevokeAuth)
}
