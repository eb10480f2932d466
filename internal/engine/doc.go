// Package engine drives the per-chat calendar sharing dialogue.
//
// # Dialogue
//
// Each chat has at most one Session, created by /start and destroyed when
// the user finishes or revokes authorization. The dialogue walks a fixed
// state machine:
//
//	SelectCalendar -> SelectAction -> AwaitShareEmail -> AwaitShareRole
//	                               -> AwaitDeleteEmail
//
// All rendering happens on one prompt message: picking a button or typing an
// e-mail edits the prompt in place rather than sending new messages. Events
// not defined for the current state are dropped without touching the
// session.
//
// # Authorization
//
// When /start arrives for a chat with no stored credential, the engine
// issues an OAuth authorization link carrying a fresh correlation token,
// registers the token, and ends the dialogue. The handoff dispatcher
// completes the flow asynchronously once the callback arrives.
//
// # Direct commands
//
// /show_calendars, /show_share, /add_share, /delete_share and
// /revoke_authorization bypass the dialogue entirely: each validates its own
// arguments and performs a single gateway or store operation.
//
// The engine talks to its collaborators through the ChatClient,
// CalendarGateway, CredentialStore and TokenRegistrar interfaces, so tests
// run against in-memory fakes.
package engine
