package connector

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"regexp"
	"strings"

	gomail "github.com/emersion/go-message/mail"
	"github.com/microcosm-cc/bluemonday"
)

const maxBodyBytes = 256 * 1024

var (
	htmlStripper  = bluemonday.StrictPolicy()
	whitespaceRun = regexp.MustCompile(`[ \t]+`)
	blankLineRun  = regexp.MustCompile(`\n{3,}`)
)

// parseRFC822 decodes an on-wire message into a RawMessage. The external id
// is taken from the Message-ID header and falls back to the caller-provided
// uid when the header is absent.
func parseRFC822(raw []byte, fallbackID string) (RawMessage, error) {
	reader, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return RawMessage{}, fmt.Errorf("failed to parse message: %w", err)
	}

	msg := RawMessage{ExternalID: fallbackID}

	header := reader.Header
	if id, err := header.MessageID(); err == nil && id != "" {
		msg.ExternalID = id
	}
	if subject, err := header.Subject(); err == nil {
		msg.Subject = subject
	} else {
		msg.Subject = decodeHeaderBestEffort(header.Get("Subject"))
	}
	if date, err := header.Date(); err == nil && !date.IsZero() {
		sentAt := date.UTC()
		msg.SentAt = &sentAt
	}
	if from, err := header.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = Address{Name: from[0].Name, Email: strings.ToLower(from[0].Address)}
	}
	if to, err := header.AddressList("To"); err == nil {
		for _, addr := range to {
			msg.To = append(msg.To, Address{Name: addr.Name, Email: strings.ToLower(addr.Address)})
		}
	}

	// The provider must not deliver a message it cannot attribute.
	if msg.From.Email == "" {
		return RawMessage{}, errors.New("message has no sender address")
	}

	for {
		part, perr := reader.NextPart()
		if errors.Is(perr, io.EOF) {
			break
		}
		if perr != nil {
			break
		}
		switch h := part.Header.(type) {
		case *gomail.InlineHeader:
			mediaType, _, _ := h.ContentType()
			body, rerr := io.ReadAll(io.LimitReader(part.Body, maxBodyBytes))
			if rerr != nil {
				continue
			}
			switch {
			case strings.HasPrefix(mediaType, "text/plain") && msg.BodyText == "":
				msg.BodyText = strings.TrimSpace(string(body))
			case strings.HasPrefix(mediaType, "text/html") && msg.BodyHTML == "":
				msg.BodyHTML = string(body)
			}
		case *gomail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			size, _ := io.Copy(io.Discard, part.Body)
			msg.Attachments = append(msg.Attachments, AttachmentMeta{
				Filename:    filename,
				ContentType: contentType,
				SizeBytes:   size,
			})
		}
	}

	if msg.BodyText == "" && msg.BodyHTML != "" {
		msg.BodyText = htmlToText(msg.BodyHTML)
	}

	return msg, nil
}

// htmlToText reduces an HTML body to readable plain text.
func htmlToText(html string) string {
	text := htmlStripper.Sanitize(html)
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = blankLineRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func decodeHeaderBestEffort(value string) string {
	decoder := mime.WordDecoder{}
	if decoded, err := decoder.DecodeHeader(value); err == nil {
		return decoded
	}
	return value
}
