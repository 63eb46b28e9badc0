package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/calmbridge/checkin/internal/models"
)

// Requester abstracts the authenticated request client.
type Requester interface {
	Do(ctx context.Context, method, endpoint string, body any) (json.RawMessage, error)
}

// CredentialStore abstracts the durable token store.
type CredentialStore interface {
	Get() (string, bool)
	Set(token string)
	Clear()
}

// SessionService answers "is there a usable session" and performs
// sign-in/sign-up/sign-out against the auth endpoints, keeping the
// credential store in step.
type SessionService struct {
	client Requester
	creds  CredentialStore
}

func NewSessionService(client Requester, creds CredentialStore) *SessionService {
	return &SessionService{client: client, creds: creds}
}

// SignUp registers a new account. The API keys accounts by username, and
// users sign in with their e-mail, so the e-mail doubles as the username.
func (s *SessionService) SignUp(ctx context.Context, name, email, password string) (*models.AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("email and password required")
	}
	body := map[string]any{
		"username": email,
		"email":    email,
		"password": password,
		"roles":    []string{"user"},
	}
	_ = name // the current API has no display-name field; kept in the contract for when it grows one
	return s.authenticate(ctx, "/api/auth/signup", body)
}

// SignIn exchanges credentials for a bearer token and persists it.
func (s *SessionService) SignIn(ctx context.Context, email, password string) (*models.AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("email and password required")
	}
	body := map[string]any{"username": email, "password": password}
	return s.authenticate(ctx, "/api/auth/signin", body)
}

func (s *SessionService) authenticate(ctx context.Context, endpoint string, body map[string]any) (*models.AuthResult, error) {
	raw, err := s.client.Do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	var res models.AuthResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode auth response: %w", err)
	}
	if res.Token != "" {
		s.creds.Set(res.Token)
	}
	return &res, nil
}

// SignOut invalidates the session server-side when it can. The local token is
// cleared no matter what, so the client never stays "logged in" against its
// own state after a server failure. The returned error is the server call's
// outcome, for logging only.
func (s *SessionService) SignOut(ctx context.Context) error {
	_, err := s.client.Do(ctx, http.MethodPost, "/api/auth/signout", nil)
	s.creds.Clear()
	return err
}

// IsAuthenticated reports token presence only. A stale token still reports
// true here; it is discovered invalid when a protected request returns 401.
func (s *SessionService) IsAuthenticated() bool {
	_, ok := s.creds.Get()
	return ok
}
