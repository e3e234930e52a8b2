package mail

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
)

// compose renders env as an RFC 5322 message. fromHeader is the display form
// of the sender.
func compose(fromHeader string, env envelope, now time.Time) ([]byte, error) {
	h := headerWriter{}
	h.add("From", fromHeader)
	h.add("To", strings.Join(env.recipients, ", "))
	if reply := strings.TrimSpace(env.msg.ReplyTo); reply != "" {
		h.add("Reply-To", reply)
	}
	h.add("Subject", mime.QEncoding.Encode("utf-8", singleLine(env.msg.Subject)))
	h.add("Date", now.Format(time.RFC1123Z))
	h.add("Message-ID", messageID(env.from))
	h.add("Auto-Submitted", "auto-generated")
	h.add("MIME-Version", "1.0")

	var body bytes.Buffer
	text, html := env.msg.TextBody, env.msg.HTMLBody
	switch {
	case html == "" || text == "":
		contentType := "text/plain; charset=UTF-8"
		content := text
		if text == "" {
			contentType, content = "text/html; charset=UTF-8", html
		}
		h.add("Content-Type", contentType)
		h.add("Content-Transfer-Encoding", "quoted-printable")
		if err := writeQuotedPrintable(&body, content); err != nil {
			return nil, err
		}
	default:
		mw := multipart.NewWriter(&body)
		if err := writePart(mw, "text/plain; charset=UTF-8", text); err != nil {
			return nil, err
		}
		if err := writePart(mw, "text/html; charset=UTF-8", html); err != nil {
			return nil, err
		}
		if err := mw.Close(); err != nil {
			return nil, fmt.Errorf("smtp: close multipart: %w", err)
		}
		h.add("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", mw.Boundary()))
	}

	var out bytes.Buffer
	h.writeTo(&out)
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

// headerWriter keeps headers in insertion order and strips line breaks from
// values so user input cannot inject headers.
type headerWriter struct {
	lines []string
}

func (h *headerWriter) add(name, value string) {
	h.lines = append(h.lines, name+": "+singleLine(value))
}

func (h *headerWriter) writeTo(w *bytes.Buffer) {
	for _, line := range h.lines {
		w.WriteString(line)
		w.WriteString("\r\n")
	}
	w.WriteString("\r\n")
}

func writePart(mw *multipart.Writer, contentType, content string) error {
	pw, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return fmt.Errorf("smtp: create part: %w", err)
	}
	return writeQuotedPrintable(pw, content)
}

func writeQuotedPrintable(w io.Writer, content string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := io.WriteString(qp, content); err != nil {
		return fmt.Errorf("smtp: encode body: %w", err)
	}
	return qp.Close()
}

func singleLine(value string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
}

// messageID builds a Message-ID under the sender's domain.
func messageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndexByte(from, '@'); at >= 0 && at < len(from)-1 {
		domain = strings.TrimSuffix(from[at+1:], ">")
	}
	return "<" + uuid.NewString() + "@" + domain + ">"
}
