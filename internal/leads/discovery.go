// Package leads finds prospective buyers and importers through the external
// web-search provider and turns organic results into scored candidates.
package leads

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"

	"github.com/exportdesk-io/exportdesk-ce/internal/metrics"
	"github.com/exportdesk-io/exportdesk-ce/internal/models"
	"github.com/exportdesk-io/exportdesk-ce/internal/repository"
)

const (
	// DefaultMaxCandidates bounds the returned candidate set.
	DefaultMaxCandidates = 50

	queriesPerCountry = 6
	hitsPerQuery      = 10
)

// Discovery runs buyer and importer searches and scores the results.
type Discovery struct {
	serp    *SerpClient
	clients *repository.ClientRepository
	fetch   *http.Client
	logger  *log.Logger
	max     int
}

// DiscoveryOption customizes the engine.
type DiscoveryOption func(*Discovery)

// NewDiscovery builds a lead discovery engine over the given provider
// client and client repository.
func NewDiscovery(serp *SerpClient, clients *repository.ClientRepository, opts ...DiscoveryOption) *Discovery {
	d := &Discovery{
		serp:    serp,
		clients: clients,
		fetch:   &http.Client{Timeout: defaultSerpTimeout},
		logger:  log.Default(),
		max:     DefaultMaxCandidates,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// WithDiscoveryLogger overrides the logger.
func WithDiscoveryLogger(logger *log.Logger) DiscoveryOption {
	return func(d *Discovery) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithDiscoveryHTTPClient overrides the client used for directory-page
// fetches, primarily for tests.
func WithDiscoveryHTTPClient(client *http.Client) DiscoveryOption {
	return func(d *Discovery) {
		if client != nil {
			d.fetch = client
		}
	}
}

// WithMaxCandidates bounds the returned candidate set.
func WithMaxCandidates(max int) DiscoveryOption {
	return func(d *Discovery) {
		if max > 0 {
			d.max = max
		}
	}
}

// Buyers searches for companies likely to buy the given product in the
// given countries. A permanent provider error (bad API key) aborts the
// whole batch; transient errors skip the query and continue, except rate
// limiting which stops issuing further queries but keeps what was found.
func (d *Discovery) Buyers(ctx context.Context, product string, countries []string) ([]*models.LeadCandidate, error) {
	product = strings.TrimSpace(product)
	if product == "" {
		return nil, fmt.Errorf("%w: product name is required", models.ErrValidation)
	}
	if len(countries) == 0 {
		countries = []string{""}
	}

	collector := newCandidateSet(d.max)
	productWords := strings.Fields(strings.ToLower(product))

	for _, country := range countries {
		for _, query := range buyerQueries(product, country) {
			if err := ctx.Err(); err != nil {
				return collector.sorted(), err
			}
			hits, err := d.serp.Search(ctx, query, hitsPerQuery, countryCode(country))
			if err != nil {
				if errors.Is(err, models.ErrPermanent) || errors.Is(err, models.ErrConfiguration) {
					return collector.sorted(), err
				}
				if rateLimited(err) {
					d.logger.Printf("[WARN] lead search rate limited, stopping batch with %d candidates", collector.len())
					out := collector.sorted()
					metrics.LeadCandidates.WithLabelValues("buyer").Add(float64(len(out)))
					return out, nil
				}
				d.logger.Printf("[WARN] lead search query failed, skipping: %v", err)
				continue
			}
			for _, hit := range hits {
				if candidate := d.evaluateHit(hit, productWords, countries); candidate != nil {
					collector.add(candidate)
				}
			}
		}
	}

	out := collector.sorted()
	metrics.LeadCandidates.WithLabelValues("buyer").Add(float64(len(out)))
	return out, nil
}

// Importers searches customs-data and directory pages for companies that
// import from the given exporter. Directory pages get a secondary pass:
// the page body is fetched and company-like tokens become candidates of
// their own.
func (d *Discovery) Importers(ctx context.Context, exporter string) ([]*models.LeadCandidate, error) {
	exporter = strings.TrimSpace(exporter)
	if exporter == "" {
		return nil, fmt.Errorf("%w: exporter company name is required", models.ErrValidation)
	}

	collector := newCandidateSet(d.max)
	exporterWords := strings.Fields(strings.ToLower(exporter))

	for _, query := range importerQueries(exporter) {
		if err := ctx.Err(); err != nil {
			return collector.sorted(), err
		}
		hits, err := d.serp.Search(ctx, query, hitsPerQuery, "")
		if err != nil {
			if errors.Is(err, models.ErrPermanent) || errors.Is(err, models.ErrConfiguration) {
				return collector.sorted(), err
			}
			if rateLimited(err) {
				break
			}
			d.logger.Printf("[WARN] importer search query failed, skipping: %v", err)
			continue
		}
		for _, hit := range hits {
			if directoryPage(hit) {
				for _, extracted := range d.extractFromDirectory(ctx, hit.Link) {
					collector.add(extracted)
				}
				continue
			}
			if candidate := d.evaluateHit(hit, exporterWords, nil); candidate != nil {
				collector.add(candidate)
			}
		}
	}

	out := collector.sorted()
	metrics.LeadCandidates.WithLabelValues("importer").Add(float64(len(out)))
	return out, nil
}

// AppendToClients stores candidates as new clients with status "Lead".
// Candidates whose email already exists are skipped; the count of created
// clients is returned.
func (d *Discovery) AppendToClients(ctx context.Context, candidates []*models.LeadCandidate) (int, error) {
	created := 0
	for _, c := range candidates {
		client := &models.Client{
			CompanyName: c.CompanyName,
			Status:      "Lead",
		}
		if c.Email != "" {
			client.Email = &c.Email
		}
		if c.Phone != "" {
			client.Phone = &c.Phone
		}
		if c.Website != "" {
			client.Website = &c.Website
		}
		if c.Country != "" {
			client.Country = &c.Country
		}
		if _, err := d.clients.Create(ctx, client); err != nil {
			if errors.Is(err, models.ErrIntegrity) {
				continue
			}
			return created, fmt.Errorf("failed to store lead %q: %w", c.CompanyName, err)
		}
		created++
	}
	return created, nil
}

// evaluateHit turns one organic result into a candidate, or nil when a
// filter rejects it.
func (d *Discovery) evaluateHit(hit OrganicHit, keywords []string, preferredCountries []string) *models.LeadCandidate {
	if excludedSource(hit.Link) {
		return nil
	}
	if genericTitle(hit.Title, keywords) {
		return nil
	}

	company := extractCompanyName(hit.Title, hit.Link)
	if company == "" {
		return nil
	}

	text := hit.Title + " " + hit.Snippet
	emails, corporate := extractEmails(text)
	candidate := &models.LeadCandidate{
		CompanyName: company,
		Phone:       extractPhone(text),
		Website:     hit.Link,
		Country:     extractCountry(hit.Title, hit.Snippet, hit.Link, preferredCountries),
		Snippet:     hit.Snippet,
		Source:      hit.Link,
	}
	if len(emails) > 0 {
		candidate.Email = emails[0]
		candidate.ExtraEmails = emails[1:]
	}
	candidate.QualityScore = qualityScore(candidate, corporate, keywords)
	return candidate
}

// qualityScore rates a candidate 0-100: email up to 40 (corporate beats
// free-mail), phone 25, website 10, keyword overlap up to 25, extras 10.
func qualityScore(c *models.LeadCandidate, corporateEmail bool, keywords []string) int {
	score := 0
	if c.Email != "" {
		if corporateEmail {
			score += 40
		} else {
			score += 25
		}
	}
	if c.Phone != "" {
		score += 25
	}
	if c.Website != "" {
		score += 10
	}

	if len(keywords) > 0 {
		haystack := strings.ToLower(c.CompanyName + " " + c.Snippet)
		matched := 0
		for _, kw := range keywords {
			if strings.Contains(haystack, kw) {
				matched++
			}
		}
		score += matched * 25 / len(keywords)
	}

	if c.Country != "" {
		score += 5
	}
	if len(c.ExtraEmails) > 0 {
		score += 5
	}

	if score > 100 {
		score = 100
	}
	return score
}

// buyerQueries builds the templated query family for one product/country.
func buyerQueries(product, country string) []string {
	if country == "" {
		return []string{
			fmt.Sprintf("%s importers", product),
			fmt.Sprintf("%s wholesale buyers", product),
			fmt.Sprintf("%s distributors contact email", product),
			fmt.Sprintf("buy %s in bulk", product),
			fmt.Sprintf("%s trading company", product),
			fmt.Sprintf("%s purchasing manager email", product),
		}
	}
	return []string{
		fmt.Sprintf("%s importers in %s", product, country),
		fmt.Sprintf("%s wholesale buyers %s", product, country),
		fmt.Sprintf("%s distributors %s contact email", product, country),
		fmt.Sprintf("buy %s in bulk %s", product, country),
		fmt.Sprintf("%s trading company %s", product, country),
		fmt.Sprintf("companies importing %s %s", product, country),
	}
}

// importerQueries targets customs/trade pages and directories mentioning
// the exporter.
func importerQueries(exporter string) []string {
	return []string{
		fmt.Sprintf("\"%s\" importers", exporter),
		fmt.Sprintf("\"%s\" customers", exporter),
		fmt.Sprintf("companies importing from \"%s\"", exporter),
		fmt.Sprintf("\"%s\" buyers list", exporter),
		fmt.Sprintf("\"%s\" shipment records consignee", exporter),
		fmt.Sprintf("\"%s\" trade partners", exporter),
	}
}

// directoryPage detects hits that are themselves lists of companies.
func directoryPage(hit OrganicHit) bool {
	lower := strings.ToLower(hit.Title + " " + hit.Link)
	for _, marker := range []string{"directory", "list of importers", "importers list", "member list", "company list", "/members", "/directory"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func rateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

func countryCode(country string) string {
	lower := strings.ToLower(strings.TrimSpace(country))
	for code, name := range tldCountries {
		if strings.EqualFold(name, lower) || strings.ToLower(name) == lower {
			return code
		}
	}
	return ""
}

// candidateSet deduplicates by lowercase company name or lowercase email,
// first seen wins.
type candidateSet struct {
	byKey map[string]bool
	items []*models.LeadCandidate
	max   int
}

func newCandidateSet(max int) *candidateSet {
	return &candidateSet{byKey: map[string]bool{}, max: max}
}

func (s *candidateSet) add(c *models.LeadCandidate) {
	var keys []string
	if c.CompanyName != "" {
		keys = append(keys, "c:"+strings.ToLower(c.CompanyName))
	}
	if c.Email != "" {
		keys = append(keys, "e:"+strings.ToLower(c.Email))
	}
	if len(keys) == 0 {
		return
	}
	for _, k := range keys {
		if s.byKey[k] {
			return
		}
	}
	for _, k := range keys {
		s.byKey[k] = true
	}
	s.items = append(s.items, c)
}

func (s *candidateSet) len() int {
	return len(s.items)
}

func (s *candidateSet) sorted() []*models.LeadCandidate {
	out := make([]*models.LeadCandidate, len(s.items))
	copy(out, s.items)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].QualityScore > out[j].QualityScore
	})
	if len(out) > s.max {
		out = out[:s.max]
	}
	return out
}
