package leads

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExcludedSource(t *testing.T) {
	cases := []struct {
		link string
		want bool
	}{
		{"https://www.alibaba.com/product/12345", true},
		{"https://supplier.alibaba.com/acme", true},
		{"https://panjiva.com/Acme-Foods", true},
		{"https://en.wikipedia.org/wiki/Rice", true},
		{"https://www.linkedin.com/in/jane-doe", true},
		{"https://www.linkedin.com/company/acme-foods", false},
		{"https://www.acme-foods.com/contact", false},
		{"not a url at all ://", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, excludedSource(tc.link), tc.link)
	}
}

func TestGenericTitle(t *testing.T) {
	product := []string{"basmati", "rice"}

	cases := []struct {
		name  string
		title string
		want  bool
	}{
		{"empty", "", true},
		{"how to", "How to find rice importers in Europe", true},
		{"listicle", "Top 10 basmati rice exporters 2025", true},
		{"directory marker", "Basmati rice suppliers directory", true},
		{"trade data", "Basmati rice import data and shipment records", true},
		{"filler only", "Buy basmati rice wholesale", true},
		{"real company", "Golden Grain Trading - basmati rice importer", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, genericTitle(tc.title, product))
		})
	}
}
