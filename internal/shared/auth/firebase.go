package auth

import (
	"context"
	"errors"
	"fmt"

	firebaseauth "firebase.google.com/go/v4/auth"
)

// IDTokenVerifier is the subset of the Firebase Auth client used to check ID tokens.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

type firebaseVerifier struct {
	client IDTokenVerifier
}

func newFirebaseVerifier(cfg Config) (Verifier, error) {
	if cfg.Firebase == nil {
		return nil, errors.New("firebase auth client is required")
	}
	return &firebaseVerifier{client: cfg.Firebase}, nil
}

func (v *firebaseVerifier) Verify(ctx context.Context, token string) (AuthenticatedUser, error) {
	decoded, err := v.client.VerifyIDToken(ctx, token)
	if err != nil {
		return AuthenticatedUser{}, fmt.Errorf("token verification failed: %w", err)
	}
	if decoded.UID == "" {
		return AuthenticatedUser{}, errMissingSubject
	}

	name, _ := decoded.Claims["name"].(string)
	email, _ := decoded.Claims["email"].(string)
	picture, _ := decoded.Claims["picture"].(string)

	return AuthenticatedUser{
		UserID:      decoded.UID,
		DisplayName: name,
		Email:       email,
		PhotoURL:    picture,
		ExpiresAt:   decoded.Expires,
		Token:       token,
	}, nil
}
