package models

// LeadCandidate is one scored company extracted from external search
// results. Candidates are transient until the user appends them to the
// client table.
type LeadCandidate struct {
	CompanyName  string   `json:"company_name"`
	Email        string   `json:"email,omitempty"`
	ExtraEmails  []string `json:"extra_emails,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	Website      string   `json:"website,omitempty"`
	Country      string   `json:"country,omitempty"`
	Snippet      string   `json:"snippet,omitempty"`
	Source       string   `json:"source"`
	QualityScore int      `json:"quality_score"`
}
