// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package auth manages the Salesforce OAuth session: the PKCE login flow,
// token refresh, and logout. Tokens live in the OS keychain; the
// non-secret session state is stored next to them.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"leadbot/cli/internal/keychain"
)

// Login hosts.
const (
	ProductionURL = "https://login.salesforce.com"
	SandboxURL    = "https://test.salesforce.com"
)

// Salesforce does not report token lifetimes; sessions default to two hours.
const sessionLifetime = 2 * time.Hour

// ErrNotLoggedIn is returned when no session is stored.
var ErrNotLoggedIn = errors.New("not logged in to Salesforce; run 'leadbot login'")

// Config describes the connected app.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Sandbox      bool

	// LoginURL overrides the login host.
	LoginURL string

	HTTPClient *http.Client
}

// Session is a stored token and the org instance it belongs to.
type Session struct {
	Token       *oauth2.Token `json:"token"`
	InstanceURL string        `json:"instance_url"`
}

// Login is an authorization request in progress.
type Login struct {
	URL      string
	State    string
	Verifier string
}

// Status summarises the stored session.
type Status struct {
	State
	Expiry     time.Time
	CanRefresh bool
}

// Service centralizes session operations against the login host and the
// keychain.
type Service struct {
	oauth    *oauth2.Config
	loginURL string
	sandbox  bool
	client   *http.Client
	store    Store
}

// NewService validates cfg and returns a Service backed by store.
func NewService(cfg Config, store Store) (*Service, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("SALESFORCE_CLIENT_ID is not set")
	}
	if cfg.RedirectURI == "" {
		return nil, errors.New("SALESFORCE_REDIRECT_URI is not set")
	}
	loginURL := cfg.LoginURL
	if loginURL == "" {
		loginURL = ProductionURL
		if cfg.Sandbox {
			loginURL = SandboxURL
		}
	}
	loginURL = strings.TrimRight(loginURL, "/")

	return &Service{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{"api", "refresh_token"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   loginURL + "/services/oauth2/authorize",
				TokenURL:  loginURL + "/services/oauth2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		loginURL: loginURL,
		sandbox:  cfg.Sandbox,
		client:   cfg.HTTPClient,
		store:    store,
	}, nil
}

// BeginLogin creates a PKCE authorization URL.
func (s *Service) BeginLogin() Login {
	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()
	return Login{
		URL:      s.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)),
		State:    state,
		Verifier: verifier,
	}
}

// CodeFrom extracts the authorization code from what the user pasted: the
// bare code or the full redirect URL. A redirect URL must carry the
// expected state.
func (l Login) CodeFrom(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("authorization code is required")
	}
	if !strings.Contains(input, "://") {
		return input, nil
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URL: %w", err)
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("authorization denied: %s", strings.TrimSpace(e+" "+q.Get("error_description")))
	}
	if got := q.Get("state"); got != l.State {
		return "", errors.New("redirect URL does not belong to this login attempt")
	}
	code := q.Get("code")
	if code == "" {
		return "", errors.New("redirect URL has no authorization code")
	}
	return code, nil
}

// Exchange trades an authorization code for a token and stores the session.
func (s *Service) Exchange(ctx context.Context, l Login, code string) (Session, error) {
	tok, err := s.oauth.Exchange(s.withClient(ctx), code, oauth2.VerifierOption(l.Verifier))
	if err != nil {
		return Session{}, fmt.Errorf("token exchange failed: %w", err)
	}
	instance, _ := tok.Extra("instance_url").(string)
	if instance == "" {
		return Session{}, errors.New("token response has no instance_url")
	}
	stamp(tok)

	sess := Session{Token: tok, InstanceURL: strings.TrimRight(instance, "/")}
	if err := s.saveSession(sess); err != nil {
		return Session{}, err
	}
	if err := SaveState(s.store, State{LoggedIn: true, InstanceURL: sess.InstanceURL, Sandbox: s.sandbox}); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Session returns the stored session.
func (s *Service) Session() (Session, error) {
	var sess Session
	data, err := s.store.LoadToken()
	if errors.Is(err, keychain.ErrNotFound) {
		return sess, ErrNotLoggedIn
	}
	if err != nil {
		return sess, err
	}
	if err := json.Unmarshal(data, &sess); err != nil {
		return sess, fmt.Errorf("stored session is corrupt: %w", err)
	}
	if sess.Token == nil || sess.InstanceURL == "" {
		return sess, ErrNotLoggedIn
	}
	return sess, nil
}

// TokenSource returns a source that serves the stored token and refreshes
// it when it expires, writing refreshed tokens back to the keychain.
func (s *Service) TokenSource(ctx context.Context) (oauth2.TokenSource, Session, error) {
	sess, err := s.Session()
	if err != nil {
		return nil, sess, err
	}
	r := &refresher{
		ctx:          s.withClient(context.WithoutCancel(ctx)),
		svc:          s,
		instanceURL:  sess.InstanceURL,
		refreshToken: sess.Token.RefreshToken,
	}
	return oauth2.ReuseTokenSource(sess.Token, r), sess, nil
}

// SetAccount records the display name of the logged-in user.
func (s *Service) SetAccount(account string) error {
	st, err := LoadState(s.store)
	if err != nil {
		return err
	}
	st.Account = account
	return SaveState(s.store, st)
}

// Status describes the stored session without contacting Salesforce.
func (s *Service) Status() (Status, error) {
	st, err := LoadState(s.store)
	if err != nil {
		return Status{}, err
	}
	sess, err := s.Session()
	if errors.Is(err, ErrNotLoggedIn) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, err
	}
	st.LoggedIn = true
	st.InstanceURL = sess.InstanceURL
	return Status{State: st, Expiry: sess.Token.Expiry, CanRefresh: sess.Token.RefreshToken != ""}, nil
}

// Logout revokes the session (best-effort) and clears local credentials.
// It reports whether the revocation succeeded.
func (s *Service) Logout(ctx context.Context) (bool, error) {
	revoked := false
	if sess, err := s.Session(); err == nil {
		tok := sess.Token.RefreshToken
		if tok == "" {
			tok = sess.Token.AccessToken
		}
		revoked = s.revoke(ctx, tok) == nil
	}
	if err := s.store.ClearAuth(); err != nil {
		return revoked, err
	}
	return revoked, nil
}

func (s *Service) revoke(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.loginURL+"/services/oauth2/revoke", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	client := s.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke failed: %s", resp.Status)
	}
	return nil
}

func (s *Service) saveSession(sess Session) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.store.SaveToken(b)
}

func (s *Service) withClient(ctx context.Context) context.Context {
	if s.client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, s.client)
}

// stamp gives a token without an expiry the default session lifetime so
// it is refreshed before Salesforce rejects it.
func stamp(t *oauth2.Token) {
	if t.Expiry.IsZero() {
		t.Expiry = time.Now().Add(sessionLifetime)
	}
}

type refresher struct {
	ctx         context.Context
	svc         *Service
	instanceURL string

	mu           sync.Mutex
	refreshToken string
}

func (r *refresher) Token() (*oauth2.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refreshToken == "" {
		return nil, errors.New("Salesforce session expired; run 'leadbot login'")
	}
	t, err := r.svc.oauth.TokenSource(r.ctx, &oauth2.Token{RefreshToken: r.refreshToken}).Token()
	if err != nil {
		return nil, err
	}
	stamp(t)
	if t.RefreshToken != "" {
		r.refreshToken = t.RefreshToken
	}
	// A failed write only costs a refresh on the next start.
	_ = r.svc.saveSession(Session{Token: t, InstanceURL: r.instanceURL})
	return t, nil
}
