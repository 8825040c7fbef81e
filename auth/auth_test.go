package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/nalgeon/be"
)

// tokenEndpoint records the JWT assertion claims of every grant request it
// receives and answers with a fixed bearer token.
type tokenEndpoint struct {
	mu     sync.Mutex
	subs   []string
	isss   []string
	scopes []string
	fail   bool
}

func (e *tokenEndpoint) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if e.fail {
			http.Error(w, `{"error":"unauthorized_client"}`, http.StatusUnauthorized)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		parts := strings.Split(r.PostFormValue("assertion"), ".")
		if len(parts) != 3 {
			http.Error(w, "bad assertion", http.StatusBadRequest)
			return
		}
		payload, err := base64.RawURLEncoding.DecodeString(parts[1])
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var claims struct {
			Iss   string `json:"iss"`
			Sub   string `json:"sub"`
			Scope string `json:"scope"`
		}
		if err := json.Unmarshal(payload, &claims); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		e.mu.Lock()
		e.subs = append(e.subs, claims.Sub)
		e.isss = append(e.isss, claims.Iss)
		e.scopes = append(e.scopes, claims.Scope)
		e.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"token-123","token_type":"Bearer","expires_in":3600}`)
	}
}

func testKeyJSON(t *testing.T, tokenURL string) []byte {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	be.Err(t, err, nil)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	be.Err(t, err, nil)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	out, err := json.Marshal(map[string]string{
		"type":         "service_account",
		"client_email": "robot@project.iam.gserviceaccount.com",
		"private_key":  string(pemKey),
		"token_uri":    tokenURL,
	})
	be.Err(t, err, nil)
	return out
}

func TestResolveSubjectEqualsMailbox(t *testing.T) {
	endpoint := &tokenEndpoint{}
	srv := httptest.NewServer(endpoint.handler())
	defer srv.Close()
	keyJSON := testKeyJSON(t, srv.URL)

	for _, subject := range []string{"", "a@x.com"} {
		endpoint.subs = nil
		tok, err := Resolve(context.Background(), keyJSON, subject, "a@x.com")
		be.Err(t, err, nil)
		be.Equal(t, tok.AccessToken, "token-123")

		// Single delegation: one grant, effective subject is the mailbox.
		be.Equal(t, len(endpoint.subs), 1)
		be.Equal(t, endpoint.subs[0], "a@x.com")
	}
}

func TestResolveSubjectDiffersFromMailbox(t *testing.T) {
	endpoint := &tokenEndpoint{}
	srv := httptest.NewServer(endpoint.handler())
	defer srv.Close()
	keyJSON := testKeyJSON(t, srv.URL)

	tok, err := Resolve(context.Background(), keyJSON, "admin@x.com", "user@x.com")
	be.Err(t, err, nil)
	be.Equal(t, tok.AccessToken, "token-123")

	// The re-delegated credential is the one exchanged: the effective
	// subject is the mailbox, never the intermediate admin identity.
	be.Equal(t, len(endpoint.subs), 1)
	be.Equal(t, endpoint.subs[0], "user@x.com")
	be.Equal(t, endpoint.isss[0], "robot@project.iam.gserviceaccount.com")
	be.Equal(t, endpoint.scopes[0], MailScope)
}

func TestResolveMalformedKey(t *testing.T) {
	for _, keyJSON := range []string{
		"not json at all",
		`{"type":"authorized_user"}`,
	} {
		_, err := Resolve(context.Background(), []byte(keyJSON), "", "a@x.com")
		be.True(t, errors.Is(err, ErrMalformedKey))
	}
}

func TestResolveAuthFailed(t *testing.T) {
	endpoint := &tokenEndpoint{fail: true}
	srv := httptest.NewServer(endpoint.handler())
	defer srv.Close()
	keyJSON := testKeyJSON(t, srv.URL)

	_, err := Resolve(context.Background(), keyJSON, "", "a@x.com")
	be.True(t, errors.Is(err, ErrAuthFailed))
}
