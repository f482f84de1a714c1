package leads

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCompanyName(t *testing.T) {
	cases := []struct {
		name  string
		title string
		link  string
		want  string
	}{
		{
			"strips site suffix and legal suffix",
			"Acme Foods Ltd - LinkedIn",
			"https://linkedin.com/company/acme-foods",
			"Acme Foods",
		},
		{
			"keeps segment before separator",
			"Hansa Imports GmbH | Premium Olive Oil Importer",
			"https://hansa-imports.de",
			"Hansa Imports",
		},
		{
			"falls back to domain token on long titles",
			"the one stop shop for everything related to rice trading in all of southern asia today",
			"https://www.golden-grain.co.uk/about",
			"Golden Grain",
		},
		{
			"falls back to domain token on tiny titles",
			"AB",
			"https://www.acme-foods.com",
			"Acme Foods",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractCompanyName(tc.title, tc.link))
		})
	}
}

func TestExtractEmails(t *testing.T) {
	t.Run("corporate first", func(t *testing.T) {
		emails, corporate := extractEmails("reach us at sales@gmail.com or Purchasing@Acme-Foods.com today")
		assert.True(t, corporate)
		assert.Equal(t, []string{"purchasing@acme-foods.com", "sales@gmail.com"}, emails)
	})

	t.Run("free mail only", func(t *testing.T) {
		emails, corporate := extractEmails("contact buyer2024@yahoo.com")
		assert.False(t, corporate)
		assert.Equal(t, []string{"buyer2024@yahoo.com"}, emails)
	})

	t.Run("obfuscated", func(t *testing.T) {
		emails, corporate := extractEmails("write to info [at] hansa [dot] de for offers")
		assert.True(t, corporate)
		assert.Equal(t, []string{"info@hansa.de"}, emails)
	})

	t.Run("deduplicates", func(t *testing.T) {
		emails, _ := extractEmails("sales@acme.com and again SALES@acme.com")
		assert.Len(t, emails, 1)
	})

	t.Run("none", func(t *testing.T) {
		emails, corporate := extractEmails("no contact details on this page")
		assert.Empty(t, emails)
		assert.False(t, corporate)
	})
}

func TestExtractPhone(t *testing.T) {
	assert.Equal(t, "+493012345678", extractPhone("call +49 30 1234 5678 anytime"))
	assert.Equal(t, "", extractPhone("founded in 1987, revenue 12.5"))
	assert.Equal(t, "", extractPhone("ext. +1 2 34"), "too few digits is noise")
}

func TestExtractCountry(t *testing.T) {
	t.Run("preferred hint wins", func(t *testing.T) {
		got := extractCountry("Rice importers in Germany", "", "https://example.us", []string{"Germany"})
		assert.Equal(t, "Germany", got)
	})

	t.Run("tld fallback", func(t *testing.T) {
		got := extractCountry("Basmati wholesale", "trusted partner", "https://www.grainhouse.in/", nil)
		assert.Equal(t, "India", got)
	})

	t.Run("text marker", func(t *testing.T) {
		got := extractCountry("Wholesale grain", "leading importer in Deutschland", "https://example.com", nil)
		assert.Equal(t, "Germany", got)
	})

	t.Run("ukraine is not uk", func(t *testing.T) {
		got := extractCountry("Grain buyers", "importers across Ukraine", "https://example.com", nil)
		assert.Equal(t, "Ukraine", got)
	})

	t.Run("unknown", func(t *testing.T) {
		assert.Equal(t, "", extractCountry("Grain buyers", "no location here", "https://example.com", nil))
	})
}

func TestLooksLikeCompany(t *testing.T) {
	assert.True(t, looksLikeCompany("Hansa Imports GmbH"))
	assert.True(t, looksLikeCompany("Golden Grain Trading"))
	assert.False(t, looksLikeCompany("rice importers"))
	assert.False(t, looksLikeCompany("Buy"))
	assert.False(t, looksLikeCompany("Click here to read our full terms and conditions for the marketplace"))
}
