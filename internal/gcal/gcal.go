// ABOUTME: Google Calendar gateway: authorization links, grant exchange, and ACL operations
// ABOUTME: Loads per-chat credentials from the store and persists refreshed tokens

package gcal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Calendar access roles grantable through the provider.
const (
	RoleFreeBusyReader = "freeBusyReader"
	RoleReader         = "reader"
	RoleWriter         = "writer"
)

// Roles lists the grantable roles in presentation order.
var Roles = []string{RoleFreeBusyReader, RoleReader, RoleWriter}

// ValidRole reports whether role is one of the grantable roles.
func ValidRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ACLEntry is one non-owner access grant on a calendar.
type ACLEntry struct {
	Email string
	Role  string
}

// TokenStore is what the gateway needs from credential storage: loading a
// chat's token and writing back a refreshed one.
type TokenStore interface {
	Get(ctx context.Context, chatID int64) ([]byte, error)
	Update(ctx context.Context, chatID int64, blob []byte) error
}

// Google performs calendar operations against the Google Calendar API
// using per-chat OAuth2 credentials.
type Google struct {
	oauth  *oauth2.Config
	store  TokenStore
	logger *slog.Logger
}

// NewGoogle builds a gateway from an OAuth2 client secret file (Google
// Cloud console format) and the externally reachable redirect URL.
func NewGoogle(clientSecretFile, redirectURL string, store TokenStore, logger *slog.Logger) (*Google, error) {
	if logger == nil {
		logger = slog.Default()
	}

	data, err := os.ReadFile(clientSecretFile)
	if err != nil {
		return nil, fmt.Errorf("reading client secret file: %w", err)
	}

	cfg, err := google.ConfigFromJSON(data, calendar.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("parsing client secret file: %w", err)
	}
	cfg.RedirectURL = redirectURL

	return &Google{
		oauth:  cfg,
		store:  store,
		logger: logger.With("component", "gcal"),
	}, nil
}

// AuthLink returns the authorization URL for the given state token.
// Offline access plus a forced consent prompt makes the provider return a
// refresh token even for repeat authorizations.
func (g *Google) AuthLink(state string) string {
	return g.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Exchange trades an authorization grant code for a credential blob.
func (g *Google) Exchange(ctx context.Context, code string) ([]byte, error) {
	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging grant code: %w", err)
	}

	blob, err := json.Marshal(tok)
	if err != nil {
		return nil, fmt.Errorf("encoding token: %w", err)
	}
	return blob, nil
}

// Calendars returns the IDs of calendars the chat's user owns.
func (g *Google) Calendars(ctx context.Context, chatID int64) ([]string, error) {
	svc, err := g.service(ctx, chatID)
	if err != nil {
		return nil, err
	}

	list, err := svc.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("listing calendars: %w", err)
	}

	// Only calendars owned by the user, not ones shared with them.
	var calendars []string
	for _, item := range list.Items {
		if item.AccessRole == "owner" {
			calendars = append(calendars, item.Id)
		}
	}
	return calendars, nil
}

// ACL returns the non-owner access grants on the calendar.
func (g *Google) ACL(ctx context.Context, chatID int64, calendarID string) ([]ACLEntry, error) {
	svc, err := g.service(ctx, chatID)
	if err != nil {
		return nil, err
	}

	acl, err := svc.Acl.List(calendarID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("listing calendar access: %w", err)
	}

	var entries []ACLEntry
	for _, rule := range acl.Items {
		if rule.Role == "owner" || rule.Scope == nil {
			continue
		}
		entries = append(entries, ACLEntry{Email: rule.Scope.Value, Role: rule.Role})
	}
	return entries, nil
}

// Grant gives email the specified role on the calendar.
func (g *Google) Grant(ctx context.Context, chatID int64, calendarID, email, role string) error {
	svc, err := g.service(ctx, chatID)
	if err != nil {
		return err
	}

	rule := &calendar.AclRule{
		Scope: &calendar.AclRuleScope{
			Type:  "user",
			Value: email,
		},
		Role: role,
	}
	if _, err := svc.Acl.Insert(calendarID, rule).Context(ctx).Do(); err != nil {
		return fmt.Errorf("granting calendar access: %w", err)
	}
	return nil
}

// Revoke removes every access rule for email on the calendar.
func (g *Google) Revoke(ctx context.Context, chatID int64, calendarID, email string) error {
	svc, err := g.service(ctx, chatID)
	if err != nil {
		return err
	}

	acl, err := svc.Acl.List(calendarID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("listing calendar access: %w", err)
	}

	for _, rule := range acl.Items {
		if rule.Scope == nil || rule.Scope.Value != email {
			continue
		}
		if err := svc.Acl.Delete(calendarID, rule.Id).Context(ctx).Do(); err != nil {
			return fmt.Errorf("revoking calendar access: %w", err)
		}
	}
	return nil
}

// service builds a calendar client for the chat, backed by a token source
// that writes rotated tokens back to the store.
func (g *Google) service(ctx context.Context, chatID int64) (*calendar.Service, error) {
	blob, err := g.store.Get(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("loading credential: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(blob, &tok); err != nil {
		return nil, fmt.Errorf("decoding credential: %w", err)
	}

	src := &persistingTokenSource{
		src:    g.oauth.TokenSource(ctx, &tok),
		last:   tok,
		chatID: chatID,
		store:  g.store,
		logger: g.logger,
	}

	svc, err := calendar.NewService(ctx, option.WithTokenSource(src))
	if err != nil {
		return nil, fmt.Errorf("building calendar client: %w", err)
	}
	return svc, nil
}

// persistingTokenSource wraps an oauth2.TokenSource and writes the token
// back to the store whenever the provider rotates it, so the next load
// does not start from an expired access token.
type persistingTokenSource struct {
	src    oauth2.TokenSource
	chatID int64
	store  TokenStore
	logger *slog.Logger

	mu   sync.Mutex
	last oauth2.Token
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if tok.AccessToken == p.last.AccessToken {
		return tok, nil
	}
	p.last = *tok

	blob, err := json.Marshal(tok)
	if err != nil {
		return nil, fmt.Errorf("encoding refreshed token: %w", err)
	}
	if err := p.store.Update(context.Background(), p.chatID, blob); err != nil {
		// The refreshed token still works for this call; losing the
		// write only costs a refresh on the next load.
		p.logger.Error("persisting refreshed token failed", "chat_id", p.chatID, "error", err)
	} else {
		p.logger.Debug("refreshed token persisted", "chat_id", p.chatID)
	}
	return tok, nil
}

// ErrorDetail extracts the provider-supplied detail from an API error for
// user-facing replies. Falls back to the plain error text.
func ErrorDetail(err error) string {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
