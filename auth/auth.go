// Package auth resolves domain-wide delegated service-account credentials
// into a short-lived bearer token for a mailbox owner.
//
// A service-account key alone cannot log into a mailbox; it must be
// impersonated as a user under domain-wide delegation. Resolve builds that
// delegation chain: the key is impersonated as a base subject (an admin
// identity, or the mailbox owner directly) and, when the two differ,
// re-delegated so the effective subject is always the mailbox owner the IMAP
// server will authenticate as.
package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
)

// MailScope is the full-mailbox scope required for IMAP access.
const MailScope = "https://mail.google.com/"

var (
	// ErrMalformedKey reports a service-account key that could not be parsed.
	ErrMalformedKey = errors.New("auth: malformed service account key")
	// ErrAuthFailed reports a failed exchange with the token endpoint.
	ErrAuthFailed = errors.New("auth: token exchange failed")
)

// Resolve parses keyJSON, impersonates subject (defaulting to mailbox when
// empty), and re-delegates to mailbox when the two differ. It returns the
// bearer token of the final delegated credential only; the token's effective
// subject always equals mailbox.
func Resolve(ctx context.Context, keyJSON []byte, subject, mailbox string) (*oauth2.Token, error) {
	cfg, err := google.JWTConfigFromJSON(keyJSON, MailScope)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}

	if subject == "" {
		subject = mailbox
	}
	cfg.Subject = subject
	if cfg.Subject != mailbox {
		// Key impersonated as subject, further delegated to act as the
		// mailbox owner.
		cfg = delegate(cfg, mailbox)
	}

	tok, err := cfg.TokenSource(ctx).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: subject %s: %v", ErrAuthFailed, cfg.Subject, err)
	}
	return tok, nil
}

// delegate returns a copy of cfg whose effective subject is subject.
func delegate(cfg *jwt.Config, subject string) *jwt.Config {
	dup := *cfg
	dup.Subject = subject
	return &dup
}
