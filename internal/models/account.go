package models

import "time"

// ProviderType identifies which mail connector serves an account.
type ProviderType string

const (
	ProviderOutlook ProviderType = "outlook"
	ProviderIMAP    ProviderType = "imap"
	ProviderCPanel  ProviderType = "cpanel_api"
)

// Valid reports whether the provider type is known.
func (p ProviderType) Valid() bool {
	switch p {
	case ProviderOutlook, ProviderIMAP, ProviderCPanel:
		return true
	}
	return false
}

// MailAccount binds a provider credential set to a local account name.
// Secret material is stored verbatim and handed to the connector untouched;
// the engine never interprets it.
type MailAccount struct {
	ID           int          `json:"id" db:"id"`
	AccountName  string       `json:"account_name" db:"account_name"`
	Email        string       `json:"email" db:"email"`
	ProviderType ProviderType `json:"provider_type" db:"provider_type"`

	// Outlook/Graph: bearer token acquired out of band.
	AccessToken *string `json:"-" db:"access_token"`

	// IMAP / cPanel: host, port, username, password (application password
	// for cPanel), SSL flag.
	Host     *string `json:"host,omitempty" db:"host"`
	Port     *int    `json:"port,omitempty" db:"port"`
	Username *string `json:"username,omitempty" db:"username"`
	Password *string `json:"-" db:"password"`
	UseSSL   bool    `json:"use_ssl" db:"use_ssl"`

	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
