package connector

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawMail(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n") + "\r\n")
}

func TestParseRFC822PlainText(t *testing.T) {
	raw := rawMail(
		"Message-ID: <abc123@mail.hansa-imports.de>",
		"From: Karim Buyer <Karim@Hansa-Imports.de>",
		"To: sales@exporter.com, Backup Desk <desk@exporter.com>",
		"Subject: Price request for basmati rice",
		"Date: Tue, 10 Jun 2025 09:30:00 +0200",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Please quote CIF Hamburg for 20ft of basmati rice.",
		"",
	)

	msg, err := parseRFC822(raw, "uid-7")
	require.NoError(t, err)
	assert.Equal(t, "abc123@mail.hansa-imports.de", msg.ExternalID)
	assert.Equal(t, "Karim Buyer", msg.From.Name)
	assert.Equal(t, "karim@hansa-imports.de", msg.From.Email)
	require.Len(t, msg.To, 2)
	assert.Equal(t, "sales@exporter.com", msg.To[0].Email)
	assert.Equal(t, "desk@exporter.com", msg.To[1].Email)
	assert.Equal(t, "Price request for basmati rice", msg.Subject)
	require.NotNil(t, msg.SentAt)
	assert.Equal(t, time.Date(2025, 6, 10, 7, 30, 0, 0, time.UTC), *msg.SentAt)
	assert.Equal(t, "Please quote CIF Hamburg for 20ft of basmati rice.", msg.BodyText)
	assert.Empty(t, msg.Attachments)
}

func TestParseRFC822FallbackID(t *testing.T) {
	raw := rawMail(
		"From: buyer@example.com",
		"To: sales@exporter.com",
		"Subject: hello",
		"",
		"Body.",
	)
	msg, err := parseRFC822(raw, "uid-42")
	require.NoError(t, err)
	assert.Equal(t, "uid-42", msg.ExternalID)
}

func TestParseRFC822HTMLOnly(t *testing.T) {
	raw := rawMail(
		"Message-ID: <html@example.com>",
		"From: buyer@example.com",
		"To: sales@exporter.com",
		"Subject: offer",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<html><body><p>Please send your   <b>price list</b></p></body></html>",
	)
	msg, err := parseRFC822(raw, "uid-1")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.BodyHTML)
	assert.Equal(t, "Please send your price list", msg.BodyText)
}

func TestParseRFC822Attachment(t *testing.T) {
	raw := rawMail(
		"Message-ID: <att@example.com>",
		"From: buyer@example.com",
		"To: sales@exporter.com",
		"Subject: order",
		"MIME-Version: 1.0",
		"Content-Type: multipart/mixed; boundary=frontier",
		"",
		"--frontier",
		"Content-Type: text/plain",
		"",
		"Order sheet attached.",
		"--frontier",
		"Content-Type: application/pdf",
		"Content-Disposition: attachment; filename=\"order.pdf\"",
		"",
		"%PDF-1.4 fake content",
		"--frontier--",
	)
	msg, err := parseRFC822(raw, "uid-2")
	require.NoError(t, err)
	assert.Equal(t, "Order sheet attached.", msg.BodyText)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "order.pdf", msg.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", msg.Attachments[0].ContentType)
	assert.Greater(t, msg.Attachments[0].SizeBytes, int64(0))
}

func TestParseRFC822NoSender(t *testing.T) {
	raw := rawMail(
		"To: sales@exporter.com",
		"Subject: anonymous",
		"",
		"Body.",
	)
	_, err := parseRFC822(raw, "uid-3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sender")
}

func TestHTMLToText(t *testing.T) {
	got := htmlToText("<div>Dear   Sir,</div>\n\n\n\n<div>please advise MOQ.</div>")
	assert.Equal(t, "Dear Sir,\n\nplease advise MOQ.", got)
}
