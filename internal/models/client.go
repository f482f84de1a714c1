package models

import (
	"fmt"
	"strings"
	"time"
)

// Classification is the derived seriousness band of a client.
type Classification string

const (
	ClassificationSerious    Classification = "Serious"
	ClassificationPotential  Classification = "Potential"
	ClassificationNotSerious Classification = "Not Serious"
)

// Band thresholds for the seriousness score.
const (
	SeriousThreshold   = 60
	PotentialThreshold = 20
)

// ClassifyScore maps a seriousness score onto its classification band.
func ClassifyScore(score int) Classification {
	switch {
	case score >= SeriousThreshold:
		return ClassificationSerious
	case score >= PotentialThreshold:
		return ClassificationPotential
	default:
		return ClassificationNotSerious
	}
}

// Valid reports whether c is one of the known bands.
func (c Classification) Valid() bool {
	switch c {
	case ClassificationSerious, ClassificationPotential, ClassificationNotSerious:
		return true
	}
	return false
}

// Client is a party the user may transact with.
type Client struct {
	ID               int            `json:"id" db:"id"`
	CompanyName      string         `json:"company_name" db:"company_name"`
	Country          *string        `json:"country,omitempty" db:"country"`
	ContactPerson    *string        `json:"contact_person,omitempty" db:"contact_person"`
	Email            *string        `json:"email,omitempty" db:"email"`
	Phone            *string        `json:"phone,omitempty" db:"phone"`
	Website          *string        `json:"website,omitempty" db:"website"`
	DateAdded        time.Time      `json:"date_added" db:"date_added"`
	Status           string         `json:"status" db:"status"`
	SeriousnessScore int            `json:"seriousness_score" db:"seriousness_score"`
	Classification   Classification `json:"classification" db:"classification"`
	IsFocus          bool           `json:"is_focus" db:"is_focus"`
}

// Validate enforces the field rules for user-submitted clients.
func (c *Client) Validate() error {
	if strings.TrimSpace(c.CompanyName) == "" {
		return fmt.Errorf("%w: company name is required", ErrValidation)
	}
	if c.Email != nil {
		email := strings.TrimSpace(*c.Email)
		if email != "" && !strings.Contains(email, "@") {
			return fmt.Errorf("%w: %q is not an email address", ErrValidation, email)
		}
	}
	return nil
}

// CanonicalEmail returns the lowercase canonical form of the client email,
// or "" when absent.
func (c *Client) CanonicalEmail() string {
	if c.Email == nil {
		return ""
	}
	return CanonicalEmail(*c.Email)
}

// CanonicalEmail lowercases and trims an address for lookup and uniqueness.
func CanonicalEmail(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// CustomSyncClient is a user-curated sync allow-list entry, independent of
// the main client table. It promotes to a Client on first successful
// ingestion from its address; the allow-list row survives the promotion.
type CustomSyncClient struct {
	ID            int       `json:"id" db:"id"`
	CompanyName   string    `json:"company_name" db:"company_name"`
	Country       *string   `json:"country,omitempty" db:"country"`
	ContactPerson *string   `json:"contact_person,omitempty" db:"contact_person"`
	Email         string    `json:"email" db:"email"`
	Phone         *string   `json:"phone,omitempty" db:"phone"`
	Website       *string   `json:"website,omitempty" db:"website"`
	DateAdded     time.Time `json:"date_added" db:"date_added"`
}

// ToClient copies the allow-list fields into a fresh client with zeroed
// score state.
func (c *CustomSyncClient) ToClient() *Client {
	email := CanonicalEmail(c.Email)
	return &Client{
		CompanyName:      c.CompanyName,
		Country:          c.Country,
		ContactPerson:    c.ContactPerson,
		Email:            &email,
		Phone:            c.Phone,
		Website:          c.Website,
		DateAdded:        c.DateAdded,
		Status:           "New",
		SeriousnessScore: 0,
		Classification:   ClassificationNotSerious,
	}
}
