package leads

import (
	"net/url"
	"strings"
)

// excludedSources hosts whose results never become candidates: marketplaces,
// directories, social networks and paid trade-data aggregators. Matching is
// by host suffix so subdomains are covered.
var excludedSources = []string{
	"alibaba.com", "aliexpress.com", "made-in-china.com", "globalsources.com",
	"indiamart.com", "tradeindia.com", "exportersindia.com", "ec21.com",
	"ecplaza.net", "tradekey.com", "go4worldbusiness.com", "eworldtrade.com",
	"amazon.com", "ebay.com", "etsy.com", "walmart.com",
	"thomasnet.com", "kompass.com", "europages.com", "yellowpages.com",
	"yelp.com", "dnb.com", "zoominfo.com", "crunchbase.com",
	"opencorporates.com", "manta.com", "bloomberg.com",
	"facebook.com", "instagram.com", "twitter.com", "x.com",
	"youtube.com", "pinterest.com", "tiktok.com", "reddit.com",
	"quora.com", "medium.com",
	"wikipedia.org", "wikihow.com",
	"importgenius.com", "panjiva.com", "importyeti.com", "volza.com",
	"seair.co.in", "zauba.com", "tradesparq.com", "datamyne.com",
	"52wmb.com", "tradeatlas.com",
	"glassdoor.com", "indeed.com",
}

var titleRejectPrefixes = []string{
	"how to", "what is", "what are", "why ", "where to", "when to",
	"guide to", "a guide", "the guide", "learn ", "find ", "best ",
	"top 10", "top 20", "top 5", "list of", "10 best", "5 best",
}

var titleRejectContains = []string{
	"suppliers", "manufacturers directory", "directory", "b2b marketplace",
	"marketplace", "wholesale suppliers", "distributors list",
	"import data", "export data", "trade data", "shipment data",
	"customs data", "buyers list", "importers list", "exporters list",
}

var genericTradeWords = map[string]bool{
	"buy": true, "buyer": true, "buyers": true, "import": true,
	"importer": true, "importers": true, "export": true, "exporter": true,
	"exporters": true, "wholesale": true, "supplier": true, "suppliers": true,
	"trade": true, "trading": true, "company": true, "companies": true,
	"in": true, "of": true, "the": true, "from": true, "and": true,
	"for": true, "best": true, "top": true,
}

// excludedSource reports whether the hit's host is on the blocklist.
// LinkedIn is the one partial exception: company pages pass, personal
// profiles and posts do not.
func excludedSource(link string) bool {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return true
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")

	if host == "linkedin.com" || strings.HasSuffix(host, ".linkedin.com") {
		return !strings.HasPrefix(u.Path, "/company/")
	}
	for _, blocked := range excludedSources {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return true
		}
	}
	return false
}

// genericTitle rejects hits whose title is a listicle, a how-to, a
// directory page, or nothing but the product words plus trading filler.
func genericTitle(title string, productWords []string) bool {
	lower := strings.ToLower(strings.TrimSpace(title))
	if lower == "" {
		return true
	}
	for _, prefix := range titleRejectPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	for _, marker := range titleRejectContains {
		if strings.Contains(lower, marker) {
			return true
		}
	}

	product := map[string]bool{}
	for _, w := range productWords {
		product[strings.ToLower(w)] = true
	}
	informative := 0
	for _, w := range strings.Fields(lower) {
		w = strings.Trim(w, ".,:;!?\"'()-")
		if w == "" || product[w] || genericTradeWords[w] {
			continue
		}
		informative++
	}
	return informative == 0
}
