package email

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
)

const maxLineLength = 76

type Builder struct {
	now   func() time.Time
	newID func() string
}

func NewBuilder() *Builder {
	return &Builder{
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Build renders msg as multipart/related (HTML and text alternatives followed by
// the inline images). Bcc addresses never appear in the headers.
func (b *Builder) Build(msg Message) ([]byte, error) {
	if msg.From == "" {
		return nil, fmt.Errorf("message has no sender")
	}
	if len(msg.Recipients()) == 0 {
		return nil, fmt.Errorf("message has no recipients")
	}

	var buf bytes.Buffer
	id := b.newID()
	domain := "localhost"
	if at := strings.LastIndex(msg.From, "@"); at >= 0 {
		domain = strings.Trim(msg.From[at+1:], "> ")
	}

	related := multipart.NewWriter(&buf)
	if err := related.SetBoundary("rel-" + id); err != nil {
		return nil, fmt.Errorf("failed to set multipart boundary: %w", err)
	}

	headers := [][2]string{
		{"From", msg.From},
	}
	if msg.ReplyTo != "" && msg.ReplyTo != msg.From {
		headers = append(headers, [2]string{"Reply-To", msg.ReplyTo})
	}
	if msg.To != "" {
		headers = append(headers, [2]string{"To", msg.To})
	}
	headers = append(headers,
		[2]string{"Date", b.now().Format(time.RFC1123Z)},
		[2]string{"Subject", mime.QEncoding.Encode("utf-8", msg.Subject)},
		[2]string{"Message-ID", fmt.Sprintf("<%s@%s>", id, domain)},
		[2]string{"MIME-Version", "1.0"},
		[2]string{"Content-Type", fmt.Sprintf("multipart/related; type=\"multipart/alternative\"; boundary=\"%s\"", related.Boundary())},
	)
	for _, h := range headers {
		if err := b.writeFoldedHeader(&buf, h[0], h[1]); err != nil {
			return nil, fmt.Errorf("failed to write header %s: %w", h[0], err)
		}
	}
	if _, err := buf.WriteString("\r\n"); err != nil {
		return nil, err
	}

	if err := b.writeAlternatives(related, "alt-"+id, msg); err != nil {
		return nil, err
	}

	for _, img := range msg.InlineImages {
		if err := b.writeInlineImage(related, img); err != nil {
			return nil, fmt.Errorf("failed to write inline image %s: %w", img.ContentID, err)
		}
	}

	if err := related.Close(); err != nil {
		return nil, fmt.Errorf("failed to write final boundary: %w", err)
	}

	return buf.Bytes(), nil
}

func (b *Builder) writeAlternatives(parent *multipart.Writer, boundary string, msg Message) error {
	part, err := parent.CreatePart(textproto.MIMEHeader{
		"Content-Type": []string{fmt.Sprintf("multipart/alternative; boundary=\"%s\"", boundary)},
	})
	if err != nil {
		return fmt.Errorf("failed to create alternative part: %w", err)
	}

	alternative := multipart.NewWriter(part)
	if err := alternative.SetBoundary(boundary); err != nil {
		return err
	}

	if msg.Text != "" {
		if err := b.writePart(alternative, "text/plain", msg.Text); err != nil {
			return err
		}
	}
	if msg.HTML != "" {
		if err := b.writePart(alternative, "text/html", msg.HTML); err != nil {
			return err
		}
	}

	return alternative.Close()
}

func (b *Builder) writePart(w *multipart.Writer, contentType string, body string) error {
	part, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              []string{contentType + "; charset=utf-8"},
		"Content-Transfer-Encoding": []string{"quoted-printable"},
	})
	if err != nil {
		return fmt.Errorf("failed to create part: %w", err)
	}

	writer := quotedprintable.NewWriter(part)
	if _, err := writer.Write([]byte(body)); err != nil {
		return fmt.Errorf("failed to write part body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close quoted-printable writer: %w", err)
	}
	return nil
}

func (b *Builder) writeInlineImage(w *multipart.Writer, img InlineImage) error {
	name := img.Name
	if name == "" {
		name = img.ContentID
	}

	part, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              []string{fmt.Sprintf("%s; name=\"%s\"", detectMime(img.Data, name), filepath.Base(name))},
		"Content-Transfer-Encoding": []string{"base64"},
		"Content-Id":                []string{fmt.Sprintf("<%s>", img.ContentID)},
		"Content-Disposition":       []string{fmt.Sprintf("inline; filename=\"%s\"", filepath.Base(name))},
	})
	if err != nil {
		return err
	}

	encoder := base64.NewEncoder(base64.StdEncoding, newLineBreakWriter(part, maxLineLength))
	if _, err := encoder.Write(img.Data); err != nil {
		return err
	}
	return encoder.Close()
}

func detectMime(data []byte, name string) string {
	kind, _ := filetype.Match(data)
	if kind != filetype.Unknown {
		return kind.MIME.Value
	}

	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}

type lineBreakWriter struct {
	w           io.Writer
	lineLength  int
	currentLine int
}

func newLineBreakWriter(w io.Writer, lineLength int) *lineBreakWriter {
	return &lineBreakWriter{w: w, lineLength: lineLength}
}

func (lbw *lineBreakWriter) Write(p []byte) (n int, err error) {
	for len(p) > 0 {
		if lbw.currentLine >= lbw.lineLength {
			if _, err := lbw.w.Write([]byte("\r\n")); err != nil {
				return n, err
			}
			lbw.currentLine = 0
		}

		toWrite := lbw.lineLength - lbw.currentLine
		if toWrite > len(p) {
			toWrite = len(p)
		}

		written, err := lbw.w.Write(p[:toWrite])
		n += written
		lbw.currentLine += written
		p = p[toWrite:]

		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// writeFoldedHeader folds long values at whitespace. Address and MIME headers
// are written on one line.
func (b *Builder) writeFoldedHeader(target io.Writer, key string, value string) error {
	line := fmt.Sprintf("%s: %s", key, value)
	if len(line) <= maxLineLength || !canFoldHeader(key) {
		_, err := io.WriteString(target, line+"\r\n")
		return err
	}

	var out strings.Builder
	current := key + ":"
	for _, word := range strings.Fields(value) {
		if len(current)+1+len(word) > maxLineLength && strings.TrimSpace(current) != key+":" {
			out.WriteString(current + "\r\n")
			current = ""
		}
		current += " " + word
	}
	out.WriteString(current + "\r\n")

	_, err := io.WriteString(target, out.String())
	return err
}

func canFoldHeader(key string) bool {
	for _, h := range []string{
		"From", "To", "Cc", "Bcc", "Reply-To", "Sender",
		"Content-Type", "Content-Disposition", "Content-Transfer-Encoding", "Content-ID",
	} {
		if strings.EqualFold(key, h) {
			return false
		}
	}
	return true
}
