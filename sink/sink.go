// Package sink applies per-message side effects: attachment writes, raw
// message writes, and text/html console dumps.
package sink

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spachava753/gimap/gmail"
)

// ErrWriteFailed reports a failed file write. A failed write aborts the
// whole run; partial per-message side effects with no rollback would be a
// worse inconsistency than stopping.
var ErrWriteFailed = errors.New("sink: write failed")

// Sink dispatches the configured actions for each fetched message. Actions
// run in a fixed order: attachments, raw message, text, html. Target
// directories must already exist; the sink never creates them.
type Sink struct {
	AttachmentDir string
	EmailDir      string
	ShowText      bool
	ShowHTML      bool

	Out io.Writer
	Log *slog.Logger
}

// NeedsBodies reports whether any configured action requires message
// payloads. When false the session can fetch headers only.
func (s *Sink) NeedsBodies() bool {
	return s.AttachmentDir != "" || s.EmailDir != "" || s.ShowText || s.ShowHTML
}

// Apply runs the enabled actions for msg.
func (s *Sink) Apply(msg *gmail.Message) error {
	if s.AttachmentDir != "" {
		if err := s.writeAttachments(msg); err != nil {
			return err
		}
	}
	if s.EmailDir != "" {
		if err := s.writeRaw(msg); err != nil {
			return err
		}
	}
	if s.ShowText {
		s.dump(msg.UID, "text", msg.Text)
	}
	if s.ShowHTML {
		s.dump(msg.UID, "html", msg.HTML)
	}
	return nil
}

func (s *Sink) writeAttachments(msg *gmail.Message) error {
	for _, att := range msg.Attachments {
		// Discard directory components the message supplies; a hostile
		// filename must not escape the target directory.
		base := filepath.Base(att.Filename)
		if base == "." || base == ".." || base == string(filepath.Separator) {
			continue
		}
		name := filepath.Join(s.AttachmentDir, base)
		if err := os.WriteFile(name, att.Payload, 0o644); err != nil {
			return fmt.Errorf("%w: attachment %s: %v", ErrWriteFailed, name, err)
		}
		s.Log.Debug("attachment written", "uid", msg.UID, "file", name)
	}
	return nil
}

func (s *Sink) writeRaw(msg *gmail.Message) error {
	name := filepath.Join(s.EmailDir, msg.UID+".eml")
	if err := os.WriteFile(name, msg.Raw, 0o644); err != nil {
		return fmt.Errorf("%w: message %s: %v", ErrWriteFailed, name, err)
	}
	s.Log.Debug("raw message written", "uid", msg.UID, "file", name)
	return nil
}

// dump prints body between markers naming the message. An absent body still
// prints a visibly empty block.
func (s *Sink) dump(uid, kind, body string) {
	fmt.Fprintf(s.Out, "----- message %s %s -----\n%s\n----- end message %s -----\n", uid, kind, body, uid)
}
