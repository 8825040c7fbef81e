// Command gimap scans a Gmail mailbox over IMAP using domain-wide delegated
// service-account credentials.
//
// Usage:
//
//	gimap [flags] EMAIL
//
// EMAIL is the mailbox address to operate on and act as. The service-account
// key supplied with -credentials is delegated to that address (optionally via
// an intermediate -subject identity) before the IMAP session is opened.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spachava753/gimap/auth"
	"github.com/spachava753/gimap/gmail"
	"github.com/spachava753/gimap/report"
	"github.com/spachava753/gimap/sink"
)

// defaultFolder is selected when no -folder is given.
const defaultFolder = "INBOX"

// config is built once from flags and threaded by value; nothing reads
// ambient state after parsing.
type config struct {
	email         string
	credentials   string
	subject       string
	folder        string
	listFolders   bool
	attachmentDir string
	emailDir      string
	showText      bool
	showHTML      bool
	uids          []string
	criteria      string
	noSummary     bool
	verbose       bool
}

type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := newLogger(cfg.verbose)
	if err := run(context.Background(), cfg, logger, os.Stdout); err != nil {
		logger.Error("gimap failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (config, error) {
	var cfg config
	var uids stringList

	fs := flag.NewFlagSet("gimap", flag.ContinueOnError)
	fs.StringVar(&cfg.credentials, "credentials", "", "service account key file in JSON format (required)")
	fs.StringVar(&cfg.credentials, "c", "", "shorthand for -credentials")
	fs.StringVar(&cfg.subject, "subject", "", "identity the key is impersonated as before delegating to EMAIL")
	fs.StringVar(&cfg.folder, "folder", "", "select this folder before fetching (default: server default)")
	fs.BoolVar(&cfg.listFolders, "list-folders", false, "list folders and exit")
	fs.StringVar(&cfg.attachmentDir, "attachment-folder", "", "download attachments to this directory")
	fs.StringVar(&cfg.attachmentDir, "a", "", "shorthand for -attachment-folder")
	fs.StringVar(&cfg.emailDir, "email-folder", "", "write raw .eml messages to this directory")
	fs.BoolVar(&cfg.showText, "show-text", false, "print text bodies to the console")
	fs.BoolVar(&cfg.showHTML, "show-html", false, "print html bodies to the console")
	fs.Var(&uids, "uid", "fetch this UID (repeatable; overrides -criteria)")
	fs.StringVar(&cfg.criteria, "criteria", "", "Gmail search criteria (sent as X-GM-RAW)")
	fs.BoolVar(&cfg.noSummary, "no-summary", false, "suppress the summary table")
	fs.BoolVar(&cfg.verbose, "verbose", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	cfg.uids = uids

	if fs.NArg() != 1 {
		return config{}, errors.New("gimap: exactly one EMAIL argument is required")
	}
	cfg.email = fs.Arg(0)
	if cfg.credentials == "" {
		return config{}, errors.New("gimap: -credentials is required")
	}
	return cfg, nil
}

// session is the part of the IMAP session scan drives. *gmail.Session
// implements it; tests substitute a fake.
type session interface {
	Folders() ([]string, error)
	Select(name string) error
	Fetch(criteria gmail.Criteria, opts gmail.FetchOptions, each func(*gmail.Message) error) ([]*gmail.Message, error)
}

func run(ctx context.Context, cfg config, logger *slog.Logger, out io.Writer) error {
	keyJSON, err := os.ReadFile(cfg.credentials)
	if err != nil {
		return fmt.Errorf("credential acquisition: %w", err)
	}
	tok, err := auth.Resolve(ctx, keyJSON, cfg.subject, cfg.email)
	if err != nil {
		return fmt.Errorf("credential acquisition: %w", err)
	}

	sess, err := gmail.Dial(cfg.email, tok.AccessToken, logger)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer sess.Close()

	return scan(cfg, sess, logger, out)
}

func scan(cfg config, sess session, logger *slog.Logger, out io.Writer) error {
	if cfg.listFolders {
		folders, err := sess.Folders()
		if err != nil {
			return fmt.Errorf("folder listing: %w", err)
		}
		for _, name := range folders {
			fmt.Fprintln(out, name)
		}
		return nil
	}

	folder := cfg.folder
	if folder == "" {
		folder = defaultFolder
	}
	if err := sess.Select(folder); err != nil {
		return fmt.Errorf("folder selection: %w", err)
	}

	dst := &sink.Sink{
		AttachmentDir: cfg.attachmentDir,
		EmailDir:      cfg.emailDir,
		ShowText:      cfg.showText,
		ShowHTML:      cfg.showHTML,
		Out:           out,
		Log:           logger,
	}

	criteria := gmail.Translate(cfg.uids, cfg.criteria)
	opts := gmail.FetchOptions{HeadersOnly: !dst.NeedsBodies()}

	batch, fetchErr := sess.Fetch(criteria, opts, dst.Apply)

	// A mid-stream protocol failure still yields a summary of what was
	// retrieved before the failure; the process exits non-zero regardless.
	if !cfg.noSummary {
		var aborted *gmail.FetchAbortedError
		if fetchErr == nil || errors.As(fetchErr, &aborted) {
			fmt.Fprintln(out, report.Render(batch))
		}
	}
	if fetchErr != nil {
		if errors.Is(fetchErr, sink.ErrWriteFailed) {
			return fmt.Errorf("sink write: %w", fetchErr)
		}
		return fmt.Errorf("fetch: %w", fetchErr)
	}
	return nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
