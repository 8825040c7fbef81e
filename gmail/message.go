package gmail

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// Attachment is one decoded attachment part.
type Attachment struct {
	Filename string
	Payload  []byte
}

// Message is the fixed-shape record handed to sinks and the summary table.
// Text, HTML, Attachments and Raw are only populated when the fetch
// retrieved bodies; on headers-only fetches Raw is nil.
type Message struct {
	UID     string
	Date    time.Time
	Subject string

	Text        string
	HTML        string
	Attachments []Attachment

	// Raw is the full RFC 5322 serialization of the message.
	Raw []byte
}

// parseBody fills Text, HTML and Attachments from Raw. A message that
// go-message cannot parse is treated as plain text rather than an error.
func (m *Message) parseBody() {
	mr, err := mail.CreateReader(bytes.NewReader(m.Raw))
	if err != nil {
		m.Text = string(m.Raw)
		return
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				m.Text = string(body)
			case strings.HasPrefix(contentType, "text/html"):
				m.HTML = string(body)
			}
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			m.Attachments = append(m.Attachments, Attachment{
				Filename: filename,
				Payload:  body,
			})
		}
	}
}
