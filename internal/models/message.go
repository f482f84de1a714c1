package models

import "time"

// Direction of a message relative to the user.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Channel identifies where a message travelled.
type Channel string

const (
	ChannelOutlook  Channel = "Outlook"
	ChannelIMAP     Channel = "IMAP"
	ChannelWhatsApp Channel = "WhatsApp"
	ChannelLinkedIn Channel = "LinkedIn"
	ChannelTelegram Channel = "Telegram"
	ChannelPhone    Channel = "Phone"
	ChannelSMS      Channel = "SMS"
	ChannelOther    Channel = "Other"
)

// Valid reports whether the channel is known.
func (c Channel) Valid() bool {
	switch c {
	case ChannelOutlook, ChannelIMAP, ChannelWhatsApp, ChannelLinkedIn,
		ChannelTelegram, ChannelPhone, ChannelSMS, ChannelOther:
		return true
	}
	return false
}

// MessageStatus is the delivery state of a message row.
type MessageStatus string

const (
	MessageReceived MessageStatus = "received"
	MessageSent     MessageStatus = "sent"
	MessageDraft    MessageStatus = "draft"
	MessageFailed   MessageStatus = "failed"
	MessagePending  MessageStatus = "pending"
)

// Message is one ingested email (or other channel entry).
//
// (client_id, external_message_id) is unique when the external id is
// non-null; a second ingestion attempt for the same pair is a no-op.
type Message struct {
	ID                int           `json:"id" db:"id"`
	ClientID          int           `json:"client_id" db:"client_id"`
	ReceivedAt        time.Time     `json:"received_at" db:"received_at"`
	SentAt            *time.Time    `json:"sent_at,omitempty" db:"sent_at"`
	Direction         Direction     `json:"direction" db:"direction"`
	Channel           Channel       `json:"channel" db:"channel"`
	RequestType       RequestType   `json:"request_type" db:"request_type"`
	Subject           string        `json:"subject" db:"subject"`
	Body              string        `json:"body" db:"body"`
	Attachments       []string      `json:"attachments,omitempty" db:"-"`
	ScoreEffect       int           `json:"score_effect" db:"score_effect"`
	ExternalMessageID *string       `json:"external_message_id,omitempty" db:"external_message_id"`
	Status            MessageStatus `json:"status" db:"status"`
}
