package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"driveprov/internal/config"
)

// tokenServer issues access tokens at-1, at-2, ... for every exchange or refresh.
func tokenServer(t *testing.T) (*httptest.Server, *[]url.Values) {
	t.Helper()
	var (
		mu     sync.Mutex
		grants []url.Values
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		mu.Lock()
		grants = append(grants, r.PostForm)
		n := len(grants)
		mu.Unlock()
		writeJSON(w, map[string]any{
			"access_token":  fmt.Sprintf("at-%d", n),
			"refresh_token": "rt",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &grants
}

func writeClientSecret(t *testing.T, dir, tokenURI string) string {
	t.Helper()
	path := filepath.Join(dir, "credentials.json")
	secret := map[string]any{"installed": map[string]any{
		"client_id":     "client-1",
		"client_secret": "secret-1",
		"auth_uri":      "https://accounts.example/auth",
		"token_uri":     tokenURI,
		"redirect_uris": []string{"http://localhost"},
	}}
	b, err := json.Marshal(secret)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

// browser plays the user: it reads the printed authorization URL and follows the
// redirect with the given code, echoing or replacing the state.
type browser struct {
	pr      *io.PipeReader
	pw      *io.PipeWriter
	code    string
	state   string
	authURL chan *url.URL
}

func newBrowser(t *testing.T, code, state string) *browser {
	t.Helper()
	pr, pw := io.Pipe()
	b := &browser{pr: pr, pw: pw, code: code, state: state, authURL: make(chan *url.URL, 1)}
	go func() {
		sc := bufio.NewScanner(pr)
		for sc.Scan() {
			if !strings.HasPrefix(sc.Text(), "https://") {
				continue
			}
			u, err := url.Parse(sc.Text())
			if err != nil {
				return
			}
			b.authURL <- u
			q := u.Query()
			state := b.state
			if state == "" {
				state = q.Get("state")
			}
			resp, err := http.Get(q.Get("redirect_uri") + "?code=" + url.QueryEscape(b.code) + "&state=" + url.QueryEscape(state))
			if err == nil {
				resp.Body.Close()
			}
			return
		}
	}()
	t.Cleanup(func() { pw.Close() })
	return b
}

func useConsentPrompt(t *testing.T, w io.Writer) {
	t.Helper()
	prev := consentPrompt
	consentPrompt = w
	t.Cleanup(func() { consentPrompt = prev })
}

func TestOAuthClient_ConsentWhenTokenMissing(t *testing.T) {
	srv, grants := tokenServer(t)
	dir := t.TempDir()
	cfg := config.DriveConfig{
		CredentialsFile: writeClientSecret(t, dir, srv.URL),
		TokenFile:       filepath.Join(dir, "token.json"),
	}
	b := newBrowser(t, "auth-code-1", "")
	useConsentPrompt(t, b.pw)

	client, err := oauthClient(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, client)

	u := <-b.authURL
	assert.Equal(t, "client-1", u.Query().Get("client_id"))
	assert.Equal(t, "offline", u.Query().Get("access_type"))
	assert.True(t, strings.HasPrefix(u.Query().Get("redirect_uri"), "http://127.0.0.1:"))

	require.Len(t, *grants, 1)
	assert.Equal(t, "authorization_code", (*grants)[0].Get("grant_type"))
	assert.Equal(t, "auth-code-1", (*grants)[0].Get("code"))

	saved, err := readToken(cfg.TokenFile)
	require.NoError(t, err)
	assert.Equal(t, "at-1", saved.AccessToken)
	assert.Equal(t, "rt", saved.RefreshToken)

	info, err := os.Stat(cfg.TokenFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestConsent_StateMismatch(t *testing.T) {
	srv, grants := tokenServer(t)
	conf, err := google.ConfigFromJSON([]byte(fmt.Sprintf(
		`{"installed":{"client_id":"c","client_secret":"s","auth_uri":"https://accounts.example/auth","token_uri":%q}}`, srv.URL)))
	require.NoError(t, err)
	b := newBrowser(t, "code", "forged")

	tok, err := consent(context.Background(), conf, b.pw)

	assert.Nil(t, tok)
	assert.EqualError(t, err, "state mismatch in redirect")
	assert.Empty(t, *grants)
}

func TestConsent_ContextCancelled(t *testing.T) {
	conf := &oauth2.Config{ClientID: "c", Endpoint: oauth2.Endpoint{AuthURL: "https://accounts.example/auth"}}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := consent(ctx, conf, io.Discard)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOAuthClient_SavedTokenIsRefreshedAndPersisted(t *testing.T) {
	srv, grants := tokenServer(t)
	dir := t.TempDir()
	cfg := config.DriveConfig{
		CredentialsFile: writeClientSecret(t, dir, srv.URL),
		TokenFile:       filepath.Join(dir, "token.json"),
	}
	expired := &oauth2.Token{AccessToken: "old", RefreshToken: "rt", TokenType: "Bearer", Expiry: time.Now().Add(-time.Hour)}
	require.NoError(t, saveToken(cfg.TokenFile, expired))
	useConsentPrompt(t, io.Discard)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, r.Header.Get("Authorization"))
	}))
	defer api.Close()

	client, err := oauthClient(context.Background(), cfg)
	require.NoError(t, err)
	resp, err := client.Get(api.URL)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, "Bearer at-1", string(body))
	require.Len(t, *grants, 1)
	assert.Equal(t, "refresh_token", (*grants)[0].Get("grant_type"))

	saved, err := readToken(cfg.TokenFile)
	require.NoError(t, err)
	assert.Equal(t, "at-1", saved.AccessToken)
}

type staticSource struct{ tokens []string }

func (s *staticSource) Token() (*oauth2.Token, error) {
	tok := &oauth2.Token{AccessToken: s.tokens[0]}
	if len(s.tokens) > 1 {
		s.tokens = s.tokens[1:]
	}
	return tok, nil
}

func TestSavingTokenSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	src := &savingTokenSource{src: &staticSource{tokens: []string{"a", "a", "b"}}, path: path, last: "a"}

	_, err := src.Token()
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "unchanged token must not be written")

	_, _ = src.Token()
	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "b", tok.AccessToken)

	saved, err := readToken(path)
	require.NoError(t, err)
	assert.Equal(t, "b", saved.AccessToken)
}
