// Package email models an outgoing batch message and renders it as MIME.
package email

import "strings"

type InlineImage struct {
	// ContentID is referenced from the HTML body as cid:<ContentID>.
	ContentID string
	Name      string
	Data      []byte
}

type Message struct {
	From         string
	To           string
	ReplyTo      string
	Bcc          []string
	Subject      string
	HTML         string
	Text         string
	InlineImages []InlineImage
}

// Recipients returns the envelope recipients: To followed by every Bcc address.
func (m Message) Recipients() []string {
	out := make([]string, 0, len(m.Bcc)+1)
	if to := strings.TrimSpace(m.To); to != "" {
		out = append(out, to)
	}
	for _, addr := range m.Bcc {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
