package otp

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	supa "github.com/supabase-community/supabase-go"
)

// PasswordVerifier checks an email and password against the auth service and
// returns the account id.
type PasswordVerifier interface {
	VerifyPassword(ctx context.Context, email, password string) (uuid.UUID, error)
}

// SupabaseVerifier signs in through the project's auth API. The session it
// obtains is discarded; only the account id is used.
type SupabaseVerifier struct {
	client *supa.Client
}

func NewSupabaseVerifier(projectURL, apiKey string) (*SupabaseVerifier, error) {
	client, err := supa.NewClient(strings.TrimRight(projectURL, "/"), apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &SupabaseVerifier{client: client}, nil
}

func (v *SupabaseVerifier) VerifyPassword(_ context.Context, email, password string) (uuid.UUID, error) {
	tok, err := v.client.Auth.SignInWithEmailPassword(strings.TrimSpace(email), password)
	if err != nil || tok == nil {
		return uuid.Nil, ErrInvalidCredentials
	}
	if tok.User.ID == uuid.Nil {
		return uuid.Nil, ErrInvalidCredentials
	}
	return tok.User.ID, nil
}
