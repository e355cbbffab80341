package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"tuitionflow/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

var sheetScopes = []string{
	"https://www.googleapis.com/auth/spreadsheets",
	"https://www.googleapis.com/auth/drive.file",
}

const oauthStateTTL = 15 * time.Minute

// TokenStore persists the single owner's Google OAuth token.
type TokenStore interface {
	SheetToken(ctx context.Context) (*oauth2.Token, error)
	SaveSheetToken(ctx context.Context, tok *oauth2.Token) error
}

// SheetsSetup is what the owner must whitelist in the Google Cloud console
type SheetsSetup struct {
	RedirectURI      string   `json:"redirectUri"`
	JavaScriptOrigin string   `json:"javascriptOrigin"`
	Scopes           []string `json:"scopes"`
}

// SheetsClient appends payment rows to the configured spreadsheet.
// Appends are serialized; one token is shared by every call.
type SheetsClient struct {
	mu           sync.Mutex
	tokens       TokenStore
	clientSecret string
	redirectURL  string
	sheetRange   string
	endpoint     oauth2.Endpoint
	options      []option.ClientOption

	stateMu sync.Mutex
	states  map[string]time.Time
}

func NewSheetsClient(tokens TokenStore, clientSecret, redirectURL, sheetRange string, opts ...option.ClientOption) *SheetsClient {
	return &SheetsClient{
		tokens:       tokens,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
		sheetRange:   sheetRange,
		endpoint:     google.Endpoint,
		options:      opts,
		states:       make(map[string]time.Time),
	}
}

func (c *SheetsClient) oauthConfig(clientID string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: c.clientSecret,
		RedirectURL:  c.redirectURL,
		Scopes:       sheetScopes,
		Endpoint:     c.endpoint,
	}
}

// Setup returns the redirect URI and origin the owner has to register.
func (c *SheetsClient) Setup() SheetsSetup {
	origin := c.redirectURL
	if u, err := url.Parse(c.redirectURL); err == nil && u.Host != "" {
		origin = u.Scheme + "://" + u.Host
	}
	return SheetsSetup{RedirectURI: c.redirectURL, JavaScriptOrigin: origin, Scopes: sheetScopes}
}

// AuthURL returns the consent URL for the configured client ID.
func (c *SheetsClient) AuthURL(cfg models.SheetConfig) (string, error) {
	if cfg.ClientID == "" {
		return "", fmt.Errorf("%w: client id is required", ErrSheetNotConfigured)
	}
	state := uuid.NewString()

	c.stateMu.Lock()
	now := time.Now()
	for s, exp := range c.states {
		if now.After(exp) {
			delete(c.states, s)
		}
	}
	c.states[state] = now.Add(oauthStateTTL)
	c.stateMu.Unlock()

	return c.oauthConfig(cfg.ClientID).AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// Exchange validates the callback state, trades the code for a token and stores it.
func (c *SheetsClient) Exchange(ctx context.Context, cfg models.SheetConfig, state, code string) error {
	c.stateMu.Lock()
	exp, ok := c.states[state]
	delete(c.states, state)
	c.stateMu.Unlock()
	if !ok || time.Now().After(exp) {
		return fmt.Errorf("%w: unknown or expired oauth state", ErrValidation)
	}
	if code == "" {
		return fmt.Errorf("%w: missing authorization code", ErrValidation)
	}

	tok, err := c.oauthConfig(cfg.ClientID).Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}
	return c.tokens.SaveSheetToken(ctx, tok)
}

// Append writes one payment row. It reports false with a reason whenever the
// row did not reach the sheet; callers record the payment regardless.
func (c *SheetsClient) Append(ctx context.Context, cfg models.SheetConfig, rec models.PaymentRecord) (bool, error) {
	if !cfg.Ready() {
		return false, ErrSheetNotConfigured
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tok, err := c.tokens.SheetToken(ctx)
	if err != nil {
		return false, fmt.Errorf("load sheet token: %w", err)
	}
	if tok == nil || (!tok.Valid() && tok.RefreshToken == "") {
		return false, ErrConsentRequired
	}

	ts := c.oauthConfig(cfg.ClientID).TokenSource(ctx, tok)
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, c.options...)
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return false, fmt.Errorf("create sheets service: %w", err)
	}

	row := &sheets.ValueRange{
		Values: [][]interface{}{{rec.Date.String(), rec.StudentName, rec.Amount, string(rec.Method)}},
	}
	_, err = srv.Spreadsheets.Values.Append(cfg.SpreadsheetID, c.sheetRange, row).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return false, fmt.Errorf("%w: %v", ErrConsentRequired, rerr)
		}
		return false, fmt.Errorf("append row: %w", err)
	}

	// keep a refreshed access token so the next append skips the refresh
	if fresh, err := ts.Token(); err == nil && fresh.AccessToken != tok.AccessToken {
		if err := c.tokens.SaveSheetToken(ctx, fresh); err != nil {
			log.WithError(err).Warn("Failed to persist refreshed sheet token")
		}
	}

	log.WithFields(log.Fields{
		"record_id": rec.ID,
		"student":   rec.StudentName,
		"amount":    rec.Amount,
	}).Info("Payment appended to sheet")
	return true, nil
}
