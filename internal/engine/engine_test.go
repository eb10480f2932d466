// ABOUTME: Tests for the conversation engine state machine
// ABOUTME: Verifies transitions, email gating, session exclusivity, and direct commands

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calgate/calgate/internal/gcal"
)

// mockChat implements ChatClient and records every call.
type mockChat struct {
	nextID int

	sent    []sentMessage
	prompts []promptMessage
	replies []replyMessage
	edits   []editMessage
	cleared []int
	deleted []int
	sendErr error
	editErr error
}

type sentMessage struct {
	chatID int64
	text   string
}

type promptMessage struct {
	chatID int64
	text   string
	kb     Keyboard
	msgID  int
}

type replyMessage struct {
	chatID  int64
	replyTo int
	text    string
}

type editMessage struct {
	chatID int64
	msgID  int
	text   string
	kb     Keyboard
}

func newMockChat() *mockChat {
	return &mockChat{nextID: 100}
}

func (m *mockChat) id() int {
	m.nextID++
	return m.nextID
}

func (m *mockChat) Send(ctx context.Context, chatID int64, text string) (int, error) {
	if m.sendErr != nil {
		return 0, m.sendErr
	}
	m.sent = append(m.sent, sentMessage{chatID: chatID, text: text})
	return m.id(), nil
}

func (m *mockChat) SendKeyboard(ctx context.Context, chatID int64, text string, kb Keyboard) (int, error) {
	if m.sendErr != nil {
		return 0, m.sendErr
	}
	msgID := m.id()
	m.prompts = append(m.prompts, promptMessage{chatID: chatID, text: text, kb: kb, msgID: msgID})
	return msgID, nil
}

func (m *mockChat) Reply(ctx context.Context, chatID int64, replyToID int, text string) (int, error) {
	m.replies = append(m.replies, replyMessage{chatID: chatID, replyTo: replyToID, text: text})
	return m.id(), nil
}

func (m *mockChat) Edit(ctx context.Context, chatID int64, messageID int, text string, kb Keyboard) error {
	if m.editErr != nil {
		return m.editErr
	}
	m.edits = append(m.edits, editMessage{chatID: chatID, msgID: messageID, text: text, kb: kb})
	return nil
}

func (m *mockChat) ClearKeyboard(ctx context.Context, chatID int64, messageID int) error {
	m.cleared = append(m.cleared, messageID)
	return nil
}

func (m *mockChat) Delete(ctx context.Context, chatID int64, messageID int) error {
	m.deleted = append(m.deleted, messageID)
	return nil
}

func (m *mockChat) lastEdit(t *testing.T) editMessage {
	t.Helper()
	require.NotEmpty(t, m.edits)
	return m.edits[len(m.edits)-1]
}

func (m *mockChat) lastSent(t *testing.T) sentMessage {
	t.Helper()
	require.NotEmpty(t, m.sent)
	return m.sent[len(m.sent)-1]
}

// mockCalendar implements CalendarGateway.
type mockCalendar struct {
	calendars    []string
	calendarsErr error
	acl          []gcal.ACLEntry
	aclErr       error
	grantErr     error
	revokeErr    error

	grants  []grantCall
	revokes []revokeCall
}

type grantCall struct {
	calendar, email, role string
}

type revokeCall struct {
	calendar, email string
}

func (m *mockCalendar) AuthLink(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (m *mockCalendar) Calendars(ctx context.Context, chatID int64) ([]string, error) {
	return m.calendars, m.calendarsErr
}

func (m *mockCalendar) ACL(ctx context.Context, chatID int64, calendarID string) ([]gcal.ACLEntry, error) {
	return m.acl, m.aclErr
}

func (m *mockCalendar) Grant(ctx context.Context, chatID int64, calendarID, email, role string) error {
	if m.grantErr != nil {
		return m.grantErr
	}
	m.grants = append(m.grants, grantCall{calendar: calendarID, email: email, role: role})
	return nil
}

func (m *mockCalendar) Revoke(ctx context.Context, chatID int64, calendarID, email string) error {
	if m.revokeErr != nil {
		return m.revokeErr
	}
	m.revokes = append(m.revokes, revokeCall{calendar: calendarID, email: email})
	return nil
}

// mockCreds implements CredentialStore.
type mockCreds struct {
	exists    bool
	existsErr error
	deleteErr error
	deleted   []int64
}

func (m *mockCreds) Exists(ctx context.Context, chatID int64) (bool, error) {
	return m.exists, m.existsErr
}

func (m *mockCreds) Delete(ctx context.Context, chatID int64) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, chatID)
	return nil
}

// mockRegistrar implements TokenRegistrar.
type mockRegistrar struct {
	registered map[string]int64
	err        error
}

func newMockRegistrar() *mockRegistrar {
	return &mockRegistrar{registered: make(map[string]int64)}
}

func (m *mockRegistrar) Register(token string, chatID int64) error {
	if m.err != nil {
		return m.err
	}
	m.registered[token] = chatID
	return nil
}

type fixture struct {
	engine    *Engine
	chat      *mockChat
	cal       *mockCalendar
	creds     *mockCreds
	registrar *mockRegistrar
}

func newFixture() *fixture {
	chat := newMockChat()
	cal := &mockCalendar{calendars: []string{"work", "family"}}
	creds := &mockCreds{exists: true}
	registrar := newMockRegistrar()
	return &fixture{
		engine:    New(chat, cal, creds, registrar, nil),
		chat:      chat,
		cal:       cal,
		creds:     creds,
		registrar: registrar,
	}
}

const testChat = int64(42)

// openDialogue drives /start and returns the created session.
func (f *fixture) openDialogue(t *testing.T) *Session {
	t.Helper()
	f.engine.HandleCommand(context.Background(), testChat, 10, "start", nil)
	s := f.engine.session(testChat)
	require.NotNil(t, s)
	return s
}

func TestStart_NoCredential_IssuesAuthLink(t *testing.T) {
	f := newFixture()
	f.creds.exists = false

	f.engine.HandleCommand(context.Background(), testChat, 10, "start", nil)

	require.Len(t, f.registrar.registered, 1)
	for token, chatID := range f.registrar.registered {
		assert.Equal(t, testChat, chatID)
		assert.Contains(t, f.chat.lastSent(t).text, "state="+token)
	}
	assert.Equal(t, 0, f.engine.ActiveSessions(), "auth link flow must not open a session")
}

func TestStart_WithCredential_OpensCalendarMenu(t *testing.T) {
	f := newFixture()

	s := f.openDialogue(t)

	assert.Equal(t, StateSelectCalendar, s.State)
	assert.Equal(t, 10, s.InitialMessageID)

	require.Len(t, f.chat.prompts, 1)
	prompt := f.chat.prompts[0]
	assert.Equal(t, PromptSelectCalendar, prompt.text)
	assert.Equal(t, prompt.msgID, s.PromptMessageID)

	// One row per calendar plus the revoke/finish row.
	require.Len(t, prompt.kb, 3)
	assert.Equal(t, "work", prompt.kb[0][0].Label)
	assert.Equal(t, "pick_calendar#work", prompt.kb[0][0].Data)
	assert.Equal(t, ButtonRevokeAuth, prompt.kb[2][0].Label)
}

func TestStart_SecondWhileActive_RepliesWithoutNewSession(t *testing.T) {
	f := newFixture()
	s := f.openDialogue(t)
	s.State = StateAwaitShareEmail
	s.PendingCalendar = "work"

	f.engine.HandleCommand(context.Background(), testChat, 11, "start", nil)

	assert.Equal(t, 1, f.engine.ActiveSessions())
	require.Len(t, f.chat.replies, 1)
	assert.Equal(t, MsgKeyboardActive, f.chat.replies[0].text)
	assert.Equal(t, s.PromptMessageID, f.chat.replies[0].replyTo)

	// Existing session is untouched.
	assert.Equal(t, StateAwaitShareEmail, s.State)
	assert.Equal(t, "work", s.PendingCalendar)
}

func TestStart_CalendarListError_Surfaced(t *testing.T) {
	f := newFixture()
	f.cal.calendarsErr = errors.New("insufficient permissions")

	f.engine.HandleCommand(context.Background(), testChat, 10, "start", nil)

	assert.Contains(t, f.chat.lastSent(t).text, "insufficient permissions")
	assert.Equal(t, 0, f.engine.ActiveSessions())
}

func TestCallback_PickCalendar_EntersActionSelection(t *testing.T) {
	f := newFixture()
	s := f.openDialogue(t)

	f.engine.HandleCallback(context.Background(), testChat, "pick_calendar#work")

	assert.Equal(t, StateSelectAction, s.State)
	edit := f.chat.lastEdit(t)
	assert.Equal(t, s.PromptMessageID, edit.msgID)
	assert.Equal(t, fmt.Sprintf(PromptChooseAction, "work"), edit.text)
	assert.Equal(t, "show_share#work", edit.kb[0][0].Data)
}

func TestCallback_UndefinedEventIsNoOp(t *testing.T) {
	cases := []struct {
		name    string
		state   State
		payload string
	}{
		{"show share from calendar selection", StateSelectCalendar, "show_share#work"},
		{"grant from calendar selection", StateSelectCalendar, "grant_reader#a@b.example"},
		{"revoke from action selection", StateSelectAction, "revoke_auth"},
		{"add share while awaiting email", StateAwaitShareEmail, "add_share#work"},
		{"grant while awaiting delete email", StateAwaitDeleteEmail, "grant_writer#a@b.example"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			s := f.openDialogue(t)
			s.State = tc.state
			s.PendingCalendar = "work"
			edits := len(f.chat.edits)

			f.engine.HandleCallback(context.Background(), testChat, tc.payload)

			assert.Equal(t, tc.state, s.State, "state must not change")
			assert.Equal(t, "work", s.PendingCalendar, "session fields must not change")
			assert.Len(t, f.chat.edits, edits, "no rendering on undefined events")
		})
	}
}

func TestCallback_WithoutSessionIgnored(t *testing.T) {
	f := newFixture()

	f.engine.HandleCallback(context.Background(), testChat, "pick_calendar#work")

	assert.Empty(t, f.chat.edits)
	assert.Empty(t, f.chat.sent)
}

func TestCallback_ShowShare_ListsEntries(t *testing.T) {
	f := newFixture()
	f.cal.acl = []gcal.ACLEntry{
		{Email: "alice@example.com", Role: gcal.RoleReader},
		{Email: "bob@example.com", Role: gcal.RoleWriter},
	}
	s := f.openDialogue(t)
	s.State = StateSelectAction

	f.engine.HandleCallback(context.Background(), testChat, "show_share#work")

	assert.Equal(t, StateSelectAction, s.State, "listing stays in place")
	edit := f.chat.lastEdit(t)
	assert.Contains(t, edit.text, "alice@example.com: read")
	assert.Contains(t, edit.text, "bob@example.com: write")
}

func TestAddShareFlow(t *testing.T) {
	f := newFixture()
	s := f.openDialogue(t)
	s.State = StateSelectAction
	ctx := context.Background()

	// Pick the add-share action.
	f.engine.HandleCallback(ctx, testChat, "add_share#work")
	assert.Equal(t, StateAwaitShareEmail, s.State)
	assert.Equal(t, "work", s.PendingCalendar)
	assert.Equal(t, fmt.Sprintf(PromptShareEmail, "work"), f.chat.lastEdit(t).text)

	// Invalid e-mail re-prompts without moving.
	f.engine.HandleText(ctx, testChat, 20, "not-an-email")
	assert.Equal(t, StateAwaitShareEmail, s.State)
	assert.Equal(t, "work", s.PendingCalendar)
	assert.Contains(t, f.chat.deleted, 20, "user input is removed from the chat")
	assert.Equal(t, PromptNotEmail, f.chat.lastEdit(t).text)

	// Valid e-mail moves to role selection.
	f.engine.HandleText(ctx, testChat, 21, "alice@example.com")
	assert.Equal(t, StateAwaitShareRole, s.State)
	edit := f.chat.lastEdit(t)
	assert.Equal(t, fmt.Sprintf(PromptChooseRole, "alice@example.com", "work"), edit.text)
	assert.Equal(t, "grant_freebusy#alice@example.com", edit.kb[0][0].Data)

	// Role button performs the grant and returns to action selection.
	f.engine.HandleCallback(ctx, testChat, "grant_reader#alice@example.com")
	assert.Equal(t, StateSelectAction, s.State)
	assert.Empty(t, s.PendingCalendar)
	require.Len(t, f.cal.grants, 1)
	assert.Equal(t, grantCall{calendar: "work", email: "alice@example.com", role: gcal.RoleReader}, f.cal.grants[0])
	assert.Contains(t, f.chat.lastEdit(t).text, "alice@example.com")
}

func TestDeleteShareFlow(t *testing.T) {
	f := newFixture()
	s := f.openDialogue(t)
	s.State = StateSelectAction
	ctx := context.Background()

	f.engine.HandleCallback(ctx, testChat, "delete_share#family")
	assert.Equal(t, StateAwaitDeleteEmail, s.State)
	assert.Equal(t, "family", s.PendingCalendar)

	f.engine.HandleText(ctx, testChat, 30, "bob@example.com")
	assert.Equal(t, StateSelectAction, s.State)
	require.Len(t, f.cal.revokes, 1)
	assert.Equal(t, revokeCall{calendar: "family", email: "bob@example.com"}, f.cal.revokes[0])
	assert.Equal(t, fmt.Sprintf(MsgUserDeleted, "bob@example.com", "family"), f.chat.lastEdit(t).text)
}

func TestDeleteShareFlow_InvalidEmailStays(t *testing.T) {
	f := newFixture()
	s := f.openDialogue(t)
	s.State = StateAwaitDeleteEmail
	s.PendingCalendar = "family"

	f.engine.HandleText(context.Background(), testChat, 30, "@@nope")

	assert.Equal(t, StateAwaitDeleteEmail, s.State)
	assert.Equal(t, "family", s.PendingCalendar)
	assert.Empty(t, f.cal.revokes)
}

func TestTextOutsideEmailStatesIgnored(t *testing.T) {
	f := newFixture()
	s := f.openDialogue(t)

	f.engine.HandleText(context.Background(), testChat, 40, "hello there")

	assert.Equal(t, StateSelectCalendar, s.State)
	assert.Empty(t, f.chat.edits)
	assert.Empty(t, f.chat.deleted)
}

func TestCallback_StartButton_RerendersInitialMenu(t *testing.T) {
	f := newFixture()
	s := f.openDialogue(t)
	s.State = StateAwaitShareEmail
	s.PendingCalendar = "work"

	f.engine.HandleCallback(context.Background(), testChat, "start")

	assert.Equal(t, StateSelectCalendar, s.State)
	assert.Empty(t, s.PendingCalendar)
	edit := f.chat.lastEdit(t)
	assert.Equal(t, s.PromptMessageID, edit.msgID, "menu is re-rendered in place")
	assert.Equal(t, PromptSelectCalendar, edit.text)
}

func TestCallback_Finish_TearsDownSession(t *testing.T) {
	f := newFixture()
	s := f.openDialogue(t)
	promptID := s.PromptMessageID

	f.engine.HandleCallback(context.Background(), testChat, "finish")

	assert.Equal(t, 0, f.engine.ActiveSessions())
	assert.Equal(t, []int{promptID}, f.chat.cleared)
	assert.Equal(t, []int{promptID, 10}, f.chat.deleted, "prompt then initiating message")
}

func TestCallback_RevokeAuth_DeletesCredentialAndFinishes(t *testing.T) {
	f := newFixture()
	f.openDialogue(t)

	f.engine.HandleCallback(context.Background(), testChat, "revoke_auth")

	assert.Equal(t, []int64{testChat}, f.creds.deleted)
	assert.Equal(t, MsgRevokeAuth, f.chat.lastSent(t).text)
	assert.Equal(t, 0, f.engine.ActiveSessions())
}

func TestCommand_Help(t *testing.T) {
	f := newFixture()

	f.engine.HandleCommand(context.Background(), testChat, 10, "help", nil)

	assert.Equal(t, MsgHelp, f.chat.lastSent(t).text)
}

func TestCommand_Unknown(t *testing.T) {
	f := newFixture()

	f.engine.HandleCommand(context.Background(), testChat, 10, "frobnicate", nil)

	assert.Equal(t, MsgUnknownCommand, f.chat.lastSent(t).text)
}

func TestCommand_ShowCalendars(t *testing.T) {
	f := newFixture()

	f.engine.HandleCommand(context.Background(), testChat, 10, "show_calendars", nil)

	assert.Equal(t, "work\nfamily", f.chat.lastSent(t).text)
}

func TestCommand_ShowCalendars_NoneIsStillAnswered(t *testing.T) {
	f := newFixture()
	f.cal.calendars = nil

	f.engine.HandleCommand(context.Background(), testChat, 10, "show_calendars", nil)

	assert.Equal(t, MsgNoCalendars, f.chat.lastSent(t).text)
}

func TestCommand_ShowShare_NoEntriesIsStillAnswered(t *testing.T) {
	f := newFixture()

	f.engine.HandleCommand(context.Background(), testChat, 10, "show_share", []string{"work"})

	assert.Equal(t, MsgNoShares, f.chat.lastSent(t).text)
}

func TestCommand_ShowShare_WrongArgCount(t *testing.T) {
	f := newFixture()

	f.engine.HandleCommand(context.Background(), testChat, 10, "show_share", nil)

	assert.Equal(t, fmt.Sprintf(MsgInvalidArgNum, 1), f.chat.lastSent(t).text)
}

func TestCommand_AddShare_InvalidEmail(t *testing.T) {
	f := newFixture()

	f.engine.HandleCommand(context.Background(), testChat, 10, "add_share",
		[]string{"mycal", "not-an-email", "reader"})

	assert.Equal(t, MsgEmailInvalid, f.chat.lastSent(t).text)
	assert.Empty(t, f.cal.grants, "validation failure must not reach the gateway")
}

func TestCommand_AddShare_InvalidRole(t *testing.T) {
	f := newFixture()

	f.engine.HandleCommand(context.Background(), testChat, 10, "add_share",
		[]string{"mycal", "user@example.com", "owner"})

	sent := f.chat.lastSent(t).text
	assert.Contains(t, sent, gcal.RoleFreeBusyReader)
	assert.Contains(t, sent, gcal.RoleReader)
	assert.Contains(t, sent, gcal.RoleWriter)
	assert.Empty(t, f.cal.grants)
}

func TestCommand_AddShare_ProviderErrorSurfaced(t *testing.T) {
	f := newFixture()
	f.cal.grantErr = errors.New("calendar unknown-cal does not exist")

	f.engine.HandleCommand(context.Background(), testChat, 10, "add_share",
		[]string{"unknown-cal", "user@example.com", "reader"})

	assert.Contains(t, f.chat.lastSent(t).text, "calendar unknown-cal does not exist")
	assert.Equal(t, 0, f.engine.ActiveSessions())
}

func TestCommand_AddShare_Success(t *testing.T) {
	f := newFixture()

	f.engine.HandleCommand(context.Background(), testChat, 10, "add_share",
		[]string{"work", "user@example.com", "writer"})

	require.Len(t, f.cal.grants, 1)
	assert.Equal(t, grantCall{calendar: "work", email: "user@example.com", role: "writer"}, f.cal.grants[0])
	assert.Equal(t, fmt.Sprintf(MsgUserAdded, "user@example.com", "writer", "work"), f.chat.lastSent(t).text)
}

func TestCommand_DeleteShare(t *testing.T) {
	f := newFixture()

	f.engine.HandleCommand(context.Background(), testChat, 10, "delete_share",
		[]string{"work", "user@example.com"})

	require.Len(t, f.cal.revokes, 1)
	assert.Equal(t, fmt.Sprintf(MsgUserDeleted, "user@example.com", "work"), f.chat.lastSent(t).text)
}

func TestCommand_DeleteShare_WrongArgCount(t *testing.T) {
	f := newFixture()

	f.engine.HandleCommand(context.Background(), testChat, 10, "delete_share", []string{"work"})

	assert.Equal(t, fmt.Sprintf(MsgInvalidArgNum, 2), f.chat.lastSent(t).text)
	assert.Empty(t, f.cal.revokes)
}

func TestCommand_RevokeAuthorization(t *testing.T) {
	f := newFixture()

	f.engine.HandleCommand(context.Background(), testChat, 10, "revoke_authorization", nil)

	assert.Equal(t, []int64{testChat}, f.creds.deleted)
	assert.Equal(t, MsgRevokeAuth, f.chat.lastSent(t).text)
}

func TestValidEmail(t *testing.T) {
	valid := []string{
		"user@example.com",
		"first.last@sub.example.org",
		"u+tag@example.co",
	}
	for _, addr := range valid {
		assert.True(t, validEmail(addr), addr)
	}

	invalid := []string{
		"",
		"not-an-email",
		"@example.com",
		"user@localhost",
		"Bob <bob@example.com>",
		"two@at@example.com",
		"user@example.com extra",
	}
	for _, addr := range invalid {
		assert.False(t, validEmail(addr), addr)
	}
}

func TestSplitPayload(t *testing.T) {
	h, arg := SplitPayload("pick_calendar#work")
	assert.Equal(t, "pick_calendar", h)
	assert.Equal(t, "work", arg)

	h, arg = SplitPayload("finish")
	assert.Equal(t, "finish", h)
	assert.Empty(t, arg)

	// Calendar names may contain the delimiter only in the argument part.
	h, arg = SplitPayload("pick_calendar#cal#1")
	assert.Equal(t, "pick_calendar", h)
	assert.Equal(t, "cal#1", arg)
}

func TestKnownHandler(t *testing.T) {
	assert.True(t, KnownHandler(HandlerPickCalendar))
	assert.True(t, KnownHandler(HandlerFinish))
	assert.False(t, KnownHandler("unrelated_button"))
}

func TestFormatACL_UnknownRoleFallsBack(t *testing.T) {
	out := formatACL([]gcal.ACLEntry{{Email: "x@example.com", Role: "custom"}})
	assert.True(t, strings.Contains(out, "x@example.com: custom"))
}

func TestFormatACL_EmptyListRendersFallback(t *testing.T) {
	assert.Equal(t, MsgNoShares, formatACL(nil))
}
