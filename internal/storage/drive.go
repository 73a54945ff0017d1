package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"driveprov/internal/config"
	"driveprov/internal/model"
)

const (
	folderMimeType      = "application/vnd.google-apps.folder"
	spreadsheetMimeType = "application/vnd.google-apps.spreadsheet"
)

var driveScopes = []string{drive.DriveScope, sheets.SpreadsheetsScope}

// consentPrompt receives the authorization URL when no saved token exists.
var consentPrompt io.Writer = os.Stderr

const consentTimeout = 5 * time.Minute

// driveStore implements Store on Google Drive. Folders are containers; spreadsheets are
// documents and are created through the Sheets API, which always places them in My Drive.
type driveStore struct {
	files  *drive.Service
	sheets *sheets.Service

	rootMu sync.Mutex
	root   *model.Container
}

var _ Store = (*driveStore)(nil)

// NewDrive creates a Drive-backed Store.
//
// Authentication, in order: cfg.Endpoint set means an unauthenticated simulator;
// an OAuth client file, using the saved token or running the consent flow when there
// is none; Application Default Credentials when no client file exists.
func NewDrive(ctx context.Context, cfg config.DriveConfig) (Store, error) {
	opts, err := driveClientOptions(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newDrive(ctx, opts...)
}

func newDrive(ctx context.Context, opts ...option.ClientOption) (*driveStore, error) {
	files, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive client: %w", err)
	}
	sh, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return &driveStore{files: files, sheets: sh}, nil
}

func driveClientOptions(ctx context.Context, cfg config.DriveConfig) ([]option.ClientOption, error) {
	if cfg.Endpoint != "" {
		return []option.ClientOption{
			option.WithEndpoint(cfg.Endpoint),
			option.WithHTTPClient(&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}),
		}, nil
	}

	client, err := oauthClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	client.Transport = otelhttp.NewTransport(client.Transport)
	return []option.ClientOption{option.WithHTTPClient(client)}, nil
}

func oauthClient(ctx context.Context, cfg config.DriveConfig) (*http.Client, error) {
	secret, err := os.ReadFile(cfg.CredentialsFile)
	if errors.Is(err, fs.ErrNotExist) {
		client, err := google.DefaultClient(ctx, driveScopes...)
		if err != nil {
			return nil, fmt.Errorf("application default credentials: %w", err)
		}
		return client, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	conf, err := google.ConfigFromJSON(secret, driveScopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	tok, err := readToken(cfg.TokenFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if tok, err = consent(ctx, conf, consentPrompt); err != nil {
			return nil, fmt.Errorf("authorize: %w", err)
		}
		if err := saveToken(cfg.TokenFile, tok); err != nil {
			return nil, fmt.Errorf("save token %s: %w", cfg.TokenFile, err)
		}
	case err != nil:
		return nil, fmt.Errorf("read token %s: %w", cfg.TokenFile, err)
	}

	src := &savingTokenSource{src: conf.TokenSource(ctx, tok), path: cfg.TokenFile, last: tok.AccessToken}
	return oauth2.NewClient(ctx, src), nil
}

// consent runs the installed-app flow: the user opens the printed URL and Google
// redirects the browser to a loopback listener with the authorization code.
func consent(ctx context.Context, base *oauth2.Config, prompt io.Writer) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, consentTimeout)
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen for redirect: %w", err)
	}
	conf := *base
	conf.RedirectURL = "http://" + ln.Addr().String() + "/"
	state := uuid.NewString()

	type result struct {
		code string
		err  error
	}
	done := make(chan result, 1)
	srv := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			var res result
			switch {
			case q.Get("state") != state:
				res.err = errors.New("state mismatch in redirect")
			case q.Get("error") != "":
				res.err = fmt.Errorf("consent denied: %s", q.Get("error"))
			case q.Get("code") == "":
				res.err = errors.New("redirect carried no code")
			default:
				res.code = q.Get("code")
			}
			if res.err != nil {
				http.Error(w, res.err.Error(), http.StatusBadRequest)
			} else {
				fmt.Fprintln(w, "Authorization complete. You can close this window.")
			}
			select {
			case done <- res:
			default:
			}
		}),
	}
	go srv.Serve(ln)
	defer srv.Close()

	fmt.Fprintf(prompt, "Open this URL in a browser to authorize access:\n%s\n",
		conf.AuthCodeURL(state, oauth2.AccessTypeOffline))

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		tok, err := conf.Exchange(ctx, res.code)
		if err != nil {
			return nil, fmt.Errorf("exchange code: %w", err)
		}
		return tok, nil
	}
}

// savingTokenSource writes every newly issued token back to path.
type savingTokenSource struct {
	src  oauth2.TokenSource
	path string

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		// A failed save only means the next run refreshes again.
		if err := saveToken(s.path, tok); err == nil {
			s.last = tok.AccessToken
		}
	}
	return tok, nil
}

// readToken loads an oauth2.Token saved as JSON (access_token, refresh_token, expiry).
func readToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// escapeQuery quotes a value for use inside a single-quoted Drive query string.
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

func (d *driveStore) list(ctx context.Context, q string) ([]*drive.File, error) {
	var out []*drive.File
	err := d.files.Files.List().
		Q(q).
		Fields("nextPageToken, files(id, name)").
		Pages(ctx, func(page *drive.FileList) error {
			out = append(out, page.Files...)
			return nil
		})
	return out, err
}

func (d *driveStore) FindContainers(ctx context.Context, name string) ([]model.Container, error) {
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", escapeQuery(name), folderMimeType)
	files, err := d.list(ctx, q)
	if err != nil {
		return nil, storeErr("find containers", err)
	}
	out := make([]model.Container, 0, len(files))
	for _, f := range files {
		out = append(out, model.Container{ID: f.Id, Name: f.Name})
	}
	return out, nil
}

func (d *driveStore) CreateContainer(ctx context.Context, name string) (model.Container, error) {
	f, err := d.files.Files.Create(&drive.File{Name: name, MimeType: folderMimeType}).
		Fields("id, name").
		Context(ctx).
		Do()
	if err != nil {
		return model.Container{}, storeErr("create container", err)
	}
	return model.Container{ID: f.Id, Name: f.Name}, nil
}

func (d *driveStore) FindDocuments(ctx context.Context, c model.Container, name string) ([]model.Document, error) {
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and '%s' in parents and trashed = false",
		escapeQuery(name), spreadsheetMimeType, escapeQuery(c.ID))
	files, err := d.list(ctx, q)
	if err != nil {
		return nil, storeErr("find documents", err)
	}
	out := make([]model.Document, 0, len(files))
	for _, f := range files {
		out = append(out, model.Document{ID: f.Id, Name: f.Name})
	}
	return out, nil
}

func (d *driveStore) CreateDocument(ctx context.Context, name string) (model.Document, error) {
	ss, err := d.sheets.Spreadsheets.Create(&sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{Title: name},
	}).Context(ctx).Do()
	if err != nil {
		return model.Document{}, storeErr("create document", err)
	}
	doc := model.Document{ID: ss.SpreadsheetId, Name: name}
	if ss.Properties != nil && ss.Properties.Title != "" {
		doc.Name = ss.Properties.Title
	}
	return doc, nil
}

// Root resolves the "root" alias to My Drive's real folder ID once per store.
// A failed lookup is not cached.
func (d *driveStore) Root(ctx context.Context) (model.Container, error) {
	d.rootMu.Lock()
	defer d.rootMu.Unlock()

	if d.root != nil {
		return *d.root, nil
	}
	f, err := d.files.Files.Get("root").Fields("id, name").Context(ctx).Do()
	if err != nil {
		return model.Container{}, storeErr("resolve root", err)
	}
	d.root = &model.Container{ID: f.Id, Name: f.Name}
	return *d.root, nil
}

func (d *driveStore) AddToContainer(ctx context.Context, doc model.Document, c model.Container) error {
	_, err := d.files.Files.Update(doc.ID, &drive.File{}).
		AddParents(c.ID).
		Fields("id, parents").
		Context(ctx).
		Do()
	return storeErr("add to container", err)
}

func (d *driveStore) RemoveFromContainer(ctx context.Context, doc model.Document, c model.Container) error {
	_, err := d.files.Files.Update(doc.ID, &drive.File{}).
		RemoveParents(c.ID).
		Fields("id, parents").
		Context(ctx).
		Do()
	return storeErr("remove from container", err)
}
