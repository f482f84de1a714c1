package models

import "time"

// RequestType classifies the structured ask extracted from a message.
type RequestType string

const (
	RequestPrice   RequestType = "price_request"
	RequestSample  RequestType = "sample_request"
	RequestSpec    RequestType = "spec_request"
	RequestMOQ     RequestType = "moq_request"
	RequestGeneral RequestType = "general"
)

// Valid reports whether the request type is known.
func (t RequestType) Valid() bool {
	switch t {
	case RequestPrice, RequestSample, RequestSpec, RequestMOQ, RequestGeneral:
		return true
	}
	return false
}

// RequestStatus is the open/closed lifecycle of a request.
type RequestStatus string

const (
	RequestOpen   RequestStatus = "open"
	RequestClosed RequestStatus = "closed"
)

// ReplyStatus tracks whether the user answered the request.
type ReplyStatus string

const (
	ReplyPending ReplyStatus = "pending"
	ReplyReplied ReplyStatus = "replied"
)

// Request is a structured business ask extracted from a message. Created by
// the classifier, closed explicitly by the user or implicitly on a matching
// outbound message.
type Request struct {
	ID              int           `json:"id" db:"id"`
	ClientID        int           `json:"client_id" db:"client_id"`
	SourceMessageID int           `json:"source_message_id" db:"source_message_id"`
	RequestType     RequestType   `json:"request_type" db:"request_type"`
	Status          RequestStatus `json:"status" db:"status"`
	ReplyStatus     ReplyStatus   `json:"reply_status" db:"reply_status"`
	ExtractedText   string        `json:"extracted_text" db:"extracted_text"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
}
