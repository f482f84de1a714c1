package models

import "time"

// QuoteStatus is the lifecycle state of a quote. Only the sent, accepted,
// rejected and expired transitions trigger side effects.
type QuoteStatus string

const (
	QuoteDraft       QuoteStatus = "draft"
	QuoteSent        QuoteStatus = "sent"
	QuoteUnderReview QuoteStatus = "under_review"
	QuoteAccepted    QuoteStatus = "accepted"
	QuoteRejected    QuoteStatus = "rejected"
	QuoteExpired     QuoteStatus = "expired"
)

// Valid reports whether the status is known.
func (s QuoteStatus) Valid() bool {
	switch s {
	case QuoteDraft, QuoteSent, QuoteUnderReview, QuoteAccepted,
		QuoteRejected, QuoteExpired:
		return true
	}
	return false
}

// Quote is a priced offer bundle.
type Quote struct {
	ID          int         `json:"id" db:"id"`
	ClientID    int         `json:"client_id" db:"client_id"`
	QuoteNumber string      `json:"quote_number" db:"quote_number"`
	QuoteDate   time.Time   `json:"quote_date" db:"quote_date"`
	ValidUntil  *time.Time  `json:"valid_until,omitempty" db:"valid_until"`
	Status      QuoteStatus `json:"status" db:"status"`
	TotalAmount float64     `json:"total_amount" db:"total_amount"`
	Currency    string      `json:"currency" db:"currency"`
	Discount    float64     `json:"discount" db:"discount"`
	TaxRate     float64     `json:"tax_rate" db:"tax_rate"`
	Notes       string      `json:"notes" db:"notes"`
	Items       []QuoteItem `json:"items,omitempty" db:"-"`
}

// QuoteItem is one priced line of a quote.
type QuoteItem struct {
	ID          int     `json:"id" db:"id"`
	QuoteID     int     `json:"quote_id" db:"quote_id"`
	ProductID   *int    `json:"product_id,omitempty" db:"product_id"`
	ProductName string  `json:"product_name" db:"product_name"`
	Quantity    float64 `json:"quantity" db:"quantity"`
	UnitPrice   float64 `json:"unit_price" db:"unit_price"`
	DiscountPct float64 `json:"discount_pct" db:"discount_pct"`
	TotalPrice  float64 `json:"total_price" db:"total_price"`
}

// LineTotal computes the item total from quantity, unit price and the
// line discount percentage.
func (i *QuoteItem) LineTotal() float64 {
	gross := i.Quantity * i.UnitPrice
	return gross * (1 - i.DiscountPct/100)
}

// Profitability summarizes a quote against per-product costs. When cost
// data is unavailable the profit fields report zero and CostDataMissing
// is set.
type Profitability struct {
	QuoteID         int     `json:"quote_id"`
	Revenue         float64 `json:"revenue"`
	Cost            float64 `json:"cost"`
	Profit          float64 `json:"profit"`
	ProfitMargin    float64 `json:"profit_margin"`
	CostDataMissing bool    `json:"cost_data_missing"`
}
