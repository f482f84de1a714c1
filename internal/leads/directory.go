package leads

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"

	"github.com/exportdesk-io/exportdesk-ce/internal/models"
)

const maxDirectoryBodyBytes = 2 << 20

// extractFromDirectory fetches a directory page and walks its list items,
// divs and table cells for company-like tokens. Fetch failures are logged
// and yield no candidates; directory pages are opportunistic.
func (d *Discovery) extractFromDirectory(ctx context.Context, pageURL string) []*models.LeadCandidate {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; exportdesk/1.0)")

	resp, err := d.fetch.Do(req)
	if err != nil {
		d.logger.Printf("[WARN] directory page fetch failed for %s: %v", pageURL, err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		d.logger.Printf("[WARN] directory page %s returned status %d", pageURL, resp.StatusCode)
		return nil
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxDirectoryBodyBytes))
	if err != nil {
		d.logger.Printf("[WARN] directory page %s is not parseable HTML: %v", pageURL, err)
		return nil
	}

	source := fmt.Sprintf("Extracted from %s", pageURL)
	seen := map[string]bool{}
	var out []*models.LeadCandidate

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "li", "td", "div":
				token := nodeText(n)
				if looksLikeCompany(token) && !seen[strings.ToLower(token)] {
					seen[strings.ToLower(token)] = true
					emails, _ := extractEmails(token)
					candidate := &models.LeadCandidate{
						CompanyName:  token,
						Phone:        extractPhone(token),
						Source:       source,
						QualityScore: 15,
					}
					if len(emails) > 0 {
						candidate.Email = emails[0]
						candidate.QualityScore += 25
					}
					out = append(out, candidate)
				}
			case "script", "style", "nav", "footer":
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	d.logger.Printf("[DEBUG] directory page %s yielded %d candidates", pageURL, len(out))
	return out
}

// nodeText flattens the direct text of a node. Nested element text is
// included only one level down so list items with a single anchor still
// resolve, without absorbing whole sub-lists.
func nodeText(n *html.Node) string {
	var b strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		switch child.Type {
		case html.TextNode:
			b.WriteString(child.Data)
		case html.ElementNode:
			for grand := child.FirstChild; grand != nil; grand = grand.NextSibling {
				if grand.Type == html.TextNode {
					b.WriteString(grand.Data)
				}
			}
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
