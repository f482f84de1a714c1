package leads

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

	// Obfuscated addresses of the form "name [at] host [dot] tld",
	// with or without brackets around the separators.
	obfuscatedEmailPattern = regexp.MustCompile(
		`([A-Za-z0-9._%+\-]+)\s*[\[\(]?\s*at\s*[\]\)]?\s*([A-Za-z0-9\-]+)\s*[\[\(]?\s*dot\s*[\]\)]?\s*([A-Za-z]{2,})`)

	phonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\+\d{1,3}[\s.\-]?\(?\d{1,4}\)?[\s.\-]?\d{3,4}[\s.\-]?\d{3,4}`),
		regexp.MustCompile(`\(?\d{3}\)?[\s.\-]\d{3}[\s.\-]\d{4}`),
		regexp.MustCompile(`\b\d{4}[\s.\-]\d{3}[\s.\-]\d{3}\b`),
	}

	nonDigitPhone = regexp.MustCompile(`[^\d+]`)
)

// freeMailDomains are consumer providers; addresses there are kept only
// when no corporate address was found in the same hit.
var freeMailDomains = map[string]bool{
	"gmail.com":      true,
	"yahoo.com":      true,
	"yahoo.co.uk":    true,
	"hotmail.com":    true,
	"outlook.com":    true,
	"live.com":       true,
	"aol.com":        true,
	"icloud.com":     true,
	"protonmail.com": true,
	"mail.com":       true,
	"gmx.com":        true,
	"yandex.com":     true,
	"zoho.com":       true,
	"rediffmail.com": true,
	"qq.com":         true,
	"163.com":        true,
	"126.com":        true,
}

var companySuffixes = []string{
	"ltd", "ltd.", "limited", "inc", "inc.", "incorporated", "llc", "l.l.c.",
	"corp", "corp.", "corporation", "co", "co.", "company", "gmbh", "s.a.",
	"sa", "srl", "s.r.l.", "bv", "b.v.", "pvt", "pvt.", "plc", "pty",
	"group", "holdings", "international", "trading", "industries",
	"enterprises", "exports", "imports", "fzc", "fze", "llp",
}

var siteSuffixes = []string{
	" - LinkedIn", " | LinkedIn", " - Facebook", " | Facebook",
	" - YouTube", " - Home", " | Home", " - Official Site",
	" - Official Website", " - About Us", " | About Us", " - Contact",
	" - Crunchbase",
}

// countryHints maps free-text markers and country-code TLDs to canonical
// country names. Text markers are matched case-insensitively.
var countryHints = map[string]string{
	"usa": "United States", "united states": "United States",
	"america": "United States", "u.s.": "United States",
	"uk": "United Kingdom", "united kingdom": "United Kingdom",
	"england": "United Kingdom", "britain": "United Kingdom",
	"germany": "Germany", "deutschland": "Germany",
	"france": "France", "italy": "Italy", "spain": "Spain",
	"netherlands": "Netherlands", "holland": "Netherlands",
	"belgium": "Belgium", "poland": "Poland", "sweden": "Sweden",
	"norway": "Norway", "denmark": "Denmark", "finland": "Finland",
	"switzerland": "Switzerland", "austria": "Austria",
	"canada": "Canada", "mexico": "Mexico", "brazil": "Brazil",
	"argentina": "Argentina", "chile": "Chile", "colombia": "Colombia",
	"china": "China", "india": "India", "japan": "Japan",
	"south korea": "South Korea", "korea": "South Korea",
	"vietnam": "Vietnam", "thailand": "Thailand", "indonesia": "Indonesia",
	"malaysia": "Malaysia", "singapore": "Singapore",
	"philippines": "Philippines", "pakistan": "Pakistan",
	"bangladesh": "Bangladesh", "sri lanka": "Sri Lanka",
	"turkey": "Turkey", "uae": "United Arab Emirates",
	"united arab emirates": "United Arab Emirates", "dubai": "United Arab Emirates",
	"saudi arabia": "Saudi Arabia", "egypt": "Egypt", "morocco": "Morocco",
	"south africa": "South Africa", "nigeria": "Nigeria", "kenya": "Kenya",
	"australia": "Australia", "new zealand": "New Zealand",
	"russia": "Russia", "ukraine": "Ukraine",
}

var tldCountries = map[string]string{
	"us": "United States", "uk": "United Kingdom", "de": "Germany",
	"fr": "France", "it": "Italy", "es": "Spain", "nl": "Netherlands",
	"be": "Belgium", "pl": "Poland", "se": "Sweden", "no": "Norway",
	"dk": "Denmark", "fi": "Finland", "ch": "Switzerland", "at": "Austria",
	"ca": "Canada", "mx": "Mexico", "br": "Brazil", "ar": "Argentina",
	"cl": "Chile", "co": "Colombia", "cn": "China", "in": "India",
	"jp": "Japan", "kr": "South Korea", "vn": "Vietnam", "th": "Thailand",
	"id": "Indonesia", "my": "Malaysia", "sg": "Singapore",
	"ph": "Philippines", "pk": "Pakistan", "bd": "Bangladesh",
	"lk": "Sri Lanka", "tr": "Turkey", "ae": "United Arab Emirates",
	"sa": "Saudi Arabia", "eg": "Egypt", "ma": "Morocco",
	"za": "South Africa", "ng": "Nigeria", "ke": "Kenya",
	"au": "Australia", "nz": "New Zealand", "ru": "Russia", "ua": "Ukraine",
}

// extractCompanyName derives a likely company name from a result title,
// falling back to the site's domain token when the title is too generic.
func extractCompanyName(title, link string) string {
	name := strings.TrimSpace(title)
	for _, suffix := range siteSuffixes {
		if cut, ok := strings.CutSuffix(name, suffix); ok {
			name = strings.TrimSpace(cut)
		}
	}
	// A title like "Acme Foods Ltd | Premium Olive Oil Exporter" keeps
	// only the segment before the separator.
	for _, sep := range []string{" | ", " – ", " — ", " - ", ": "} {
		if idx := strings.Index(name, sep); idx > 0 {
			name = strings.TrimSpace(name[:idx])
			break
		}
	}
	name = strings.Trim(name, " \t\"'.,")
	lower := strings.ToLower(name)
	for _, suffix := range companySuffixes {
		if strings.HasSuffix(lower, " "+suffix) {
			name = strings.TrimSpace(name[:len(name)-len(suffix)-1])
			name = strings.TrimRight(name, ",")
			break
		}
	}

	if len(name) < 3 || len(strings.Fields(name)) > 8 {
		return domainToken(link)
	}
	return name
}

// domainToken turns "https://www.acme-foods.co.uk/about" into "Acme Foods".
func domainToken(link string) string {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	host = strings.SplitN(host, ".", 2)[0]
	host = strings.ReplaceAll(host, "-", " ")
	host = strings.ReplaceAll(host, "_", " ")
	return cases.Title(language.English).String(host)
}

// extractEmails returns all addresses found in the text, corporate domains
// first, obfuscated forms decoded. The boolean reports whether the first
// address is on a corporate domain.
func extractEmails(text string) ([]string, bool) {
	seen := map[string]bool{}
	var corporate, free []string

	add := func(addr string) {
		addr = strings.ToLower(strings.Trim(addr, ".,;:"))
		if seen[addr] {
			return
		}
		seen[addr] = true
		at := strings.LastIndex(addr, "@")
		if at < 0 {
			return
		}
		if freeMailDomains[addr[at+1:]] {
			free = append(free, addr)
		} else {
			corporate = append(corporate, addr)
		}
	}

	for _, m := range emailPattern.FindAllString(text, -1) {
		add(m)
	}
	for _, m := range obfuscatedEmailPattern.FindAllStringSubmatch(text, -1) {
		add(m[1] + "@" + m[2] + "." + m[3])
	}

	out := append(corporate, free...)
	return out, len(corporate) > 0
}

// extractPhone returns the first phone-like token, normalised to digits
// with an optional leading plus. Tokens shorter than 7 digits are noise.
func extractPhone(text string) string {
	for _, pattern := range phonePatterns {
		for _, m := range pattern.FindAllString(text, -1) {
			normalised := nonDigitPhone.ReplaceAllString(m, "")
			digits := strings.TrimPrefix(normalised, "+")
			if len(digits) >= 7 && len(digits) <= 15 {
				return normalised
			}
		}
	}
	return ""
}

// extractCountry resolves a country from preferred hints, then the URL's
// country-code TLD, then free-text mention in title or snippet.
func extractCountry(title, snippet, link string, preferred []string) string {
	haystack := strings.ToLower(title + " " + snippet)
	for _, want := range preferred {
		if strings.Contains(haystack, strings.ToLower(want)) {
			return want
		}
	}
	if u, err := url.Parse(link); err == nil && u.Host != "" {
		parts := strings.Split(strings.ToLower(u.Host), ".")
		if country, ok := tldCountries[parts[len(parts)-1]]; ok {
			return country
		}
	}
	for marker, country := range countryHints {
		if containsWord(haystack, marker) {
			return country
		}
	}
	return ""
}

// containsWord reports a whole-word, case-insensitive match. Plain
// Contains would turn "ukraine" into a "uk" hit.
func containsWord(haystack, word string) bool {
	idx := 0
	for {
		pos := strings.Index(haystack[idx:], word)
		if pos < 0 {
			return false
		}
		pos += idx
		before := pos == 0 || !isWordChar(haystack[pos-1])
		afterIdx := pos + len(word)
		after := afterIdx >= len(haystack) || !isWordChar(haystack[afterIdx])
		if before && after {
			return true
		}
		idx = pos + len(word)
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// looksLikeCompany reports whether a text token plausibly names a company:
// it starts with a capital and either carries a legal suffix or is a short
// multi-word proper phrase.
func looksLikeCompany(token string) bool {
	token = strings.TrimSpace(token)
	if len(token) < 4 || len(token) > 80 {
		return false
	}
	first := token[0]
	if first < 'A' || first > 'Z' {
		return false
	}
	lower := strings.ToLower(token)
	for _, suffix := range companySuffixes {
		if strings.HasSuffix(lower, " "+suffix) || strings.HasSuffix(lower, " "+suffix+".") {
			return true
		}
	}
	words := strings.Fields(token)
	if len(words) < 2 || len(words) > 6 {
		return false
	}
	capitalised := 0
	for _, w := range words {
		if w[0] >= 'A' && w[0] <= 'Z' {
			capitalised++
		}
	}
	return capitalised >= len(words)-1
}
