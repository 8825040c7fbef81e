package gmail

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/responses"
)

const (
	gmailIMAPAddress = "imap.gmail.com:993"
	gmailIMAPHost    = "imap.gmail.com"

	// fetchBatchSize bounds each UID FETCH issued during a scan.
	fetchBatchSize = 100
)

var (
	// ErrConnectFailed reports a failed dial or bearer-token authentication.
	ErrConnectFailed = errors.New("gmail: connect failed")
	// ErrNoSuchFolder reports a folder the server refused to select.
	ErrNoSuchFolder = errors.New("gmail: no such folder")
)

// FetchAbortedError reports a fetch that failed mid-stream. Fetched holds the
// messages accumulated before the failure, in arrival order, so callers can
// still summarize them.
type FetchAbortedError struct {
	Fetched []*Message
	Err     error
}

func (e *FetchAbortedError) Error() string {
	return fmt.Sprintf("gmail: fetch aborted after %d messages: %v", len(e.Fetched), e.Err)
}

func (e *FetchAbortedError) Unwrap() error { return e.Err }

// FetchOptions controls a fetch. Batch size and peek behavior are fixed;
// messages are never marked seen.
type FetchOptions struct {
	// HeadersOnly skips body download when no consumer needs payloads.
	HeadersOnly bool
}

// Session owns the IMAP connection for the duration of a run.
type Session struct {
	c   *client.Client
	log *slog.Logger
}

// Dial connects to Gmail over TLS and authenticates as identity using the
// bearer token. The caller must Close the returned session on every exit
// path.
func Dial(identity, token string, log *slog.Logger) (*Session, error) {
	c, err := client.DialTLS(gmailIMAPAddress, &tls.Config{ServerName: gmailIMAPHost})
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", ErrConnectFailed, gmailIMAPAddress, err)
	}

	if err := c.Authenticate(newXOAuth2Client(identity, token)); err != nil {
		c.Logout()
		return nil, fmt.Errorf("%w: authenticating as %s: %v", ErrConnectFailed, identity, err)
	}

	log.Debug("imap session established", "identity", identity)
	return &Session{c: c, log: log}, nil
}

// Close logs the session out.
func (s *Session) Close() error {
	return s.c.Logout()
}

// Folders returns all folder names in the order the server lists them.
func (s *Session) Folders() ([]string, error) {
	ch := make(chan *imap.MailboxInfo, 128)
	done := make(chan error, 1)
	go func() {
		done <- s.c.List("", "*", ch)
	}()

	names := make([]string, 0, 64)
	for mbox := range ch {
		names = append(names, mbox.Name)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("gmail: listing folders failed: %w", err)
	}
	return names, nil
}

// Select switches the session to the named folder. The folder is opened
// read-only; fetching never changes message flags.
func (s *Session) Select(name string) error {
	if _, err := s.c.Select(name, true); err != nil {
		return selectError(name, err)
	}
	s.log.Debug("folder selected", "folder", name)
	return nil
}

// selectError maps a failed SELECT to the error taxonomy: a tagged NO from
// the server means the folder is absent; anything else is a transport
// failure.
func selectError(name string, err error) error {
	var status *imap.ErrStatusResp
	if errors.As(err, &status) {
		return fmt.Errorf("%w: %q: %v", ErrNoSuchFolder, name, err)
	}
	return fmt.Errorf("gmail: selecting folder %q failed: %w", name, err)
}

// Fetch runs one logical search for criteria and retrieves the matching
// messages in server order, in batches of 100, without marking them seen.
// Each message is handed to each as it arrives, then appended to the
// returned batch. A mid-stream protocol failure returns a *FetchAbortedError
// carrying the messages accumulated so far; an error from each aborts the
// loop and is returned as-is alongside the partial batch.
func (s *Session) Fetch(criteria Criteria, opts FetchOptions, each func(*Message) error) ([]*Message, error) {
	uids, err := s.search(criteria)
	if err != nil {
		return nil, &FetchAbortedError{Err: err}
	}
	s.log.Debug("search complete", "expr", criteria.SearchExpr(), "matches", len(uids))

	return collect(uids, fetchBatchSize, func(chunk []uint32) ([]*Message, error) {
		return s.fetchChunk(chunk, opts.HeadersOnly)
	}, each)
}

func (s *Session) search(criteria Criteria) ([]uint32, error) {
	cmd := &uidSearch{Expr: criteria.SearchExpr()}
	resp := &responses.Search{}
	if _, err := s.c.Execute(cmd, resp); err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}
	return resp.Ids, nil
}

func (s *Session) fetchChunk(uids []uint32, headersOnly bool) ([]*Message, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, imap.FetchInternalDate}
	var bodySection *imap.BodySectionName
	if !headersOnly {
		bodySection = &imap.BodySectionName{Peek: true}
		items = append(items, bodySection.FetchItem())
	}

	ch := make(chan *imap.Message, len(uids)+8)
	done := make(chan error, 1)
	go func() {
		done <- s.c.UidFetch(seqSet, items, ch)
	}()

	out := make([]*Message, 0, len(uids))
	for raw := range ch {
		msg := &Message{
			UID:     strconv.FormatUint(uint64(raw.Uid), 10),
			Date:    envelopeDate(raw.Envelope, raw.InternalDate),
			Subject: envelopeSubject(raw.Envelope),
		}
		if bodySection != nil {
			if literal := raw.GetBody(bodySection); literal != nil {
				body, err := io.ReadAll(literal)
				if err != nil {
					<-done
					return out, fmt.Errorf("reading fetched body: %w", err)
				}
				msg.Raw = body
				msg.parseBody()
			}
		}
		out = append(out, msg)
	}
	if err := <-done; err != nil {
		return out, fmt.Errorf("fetching messages: %w", err)
	}
	return out, nil
}

// collect drives the batched fetch loop: every retrieved message passes
// through each before being appended to the batch, order preserved.
func collect(uids []uint32, batchSize int, fetch func([]uint32) ([]*Message, error), each func(*Message) error) ([]*Message, error) {
	batch := make([]*Message, 0, len(uids))
	for i := 0; i < len(uids); i += batchSize {
		j := min(i+batchSize, len(uids))
		msgs, err := fetch(uids[i:j])
		for _, msg := range msgs {
			if each != nil {
				if sinkErr := each(msg); sinkErr != nil {
					// Keep a fetch error that arrived with this chunk
					// instead of silently dropping it.
					if err != nil {
						sinkErr = errors.Join(sinkErr, err)
					}
					return batch, sinkErr
				}
			}
			batch = append(batch, msg)
		}
		if err != nil {
			return batch, &FetchAbortedError{Fetched: batch, Err: err}
		}
	}
	return batch, nil
}

func envelopeSubject(env *imap.Envelope) string {
	if env == nil {
		return ""
	}
	return env.Subject
}

func envelopeDate(env *imap.Envelope, fallback time.Time) time.Time {
	if env != nil && !env.Date.IsZero() {
		return env.Date
	}
	return fallback
}

// uidSearch issues a raw UID SEARCH so extension terms like X-GM-RAW reach
// the server verbatim.
type uidSearch struct {
	Expr string
}

func (s *uidSearch) Command() *imap.Command {
	return &imap.Command{
		Name:      "UID SEARCH",
		Arguments: []any{imap.RawString(s.Expr)},
	}
}
