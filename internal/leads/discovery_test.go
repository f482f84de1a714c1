package leads

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exportdesk-io/exportdesk-ce/internal/database"
	"github.com/exportdesk-io/exportdesk-ce/internal/models"
	"github.com/exportdesk-io/exportdesk-ce/internal/repository"
)

func serveHits(t *testing.T, hits []OrganicHit) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NotEmpty(t, r.URL.Query().Get("q"))
		require.NotEmpty(t, r.URL.Query().Get("api_key"))
		json.NewEncoder(w).Encode(serpResponse{OrganicResults: hits})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBuyersCollectsAndRanks(t *testing.T) {
	srv := serveHits(t, []OrganicHit{
		{
			Position: 1,
			Title:    "Golden Grain Trading - basmati rice importer",
			Link:     "https://www.golden-grain.de/contact",
			Snippet:  "Contact purchasing@golden-grain.de or call +49 30 1234 5678 for basmati rice offers.",
		},
		{
			Position: 2,
			Title:    "Hansa Imports GmbH | rice wholesale",
			Link:     "https://hansa-imports.de",
			Snippet:  "Importer of basmati rice into Germany.",
		},
		{
			Position: 3,
			Title:    "Top 10 basmati rice exporters 2025",
			Link:     "https://blog.example.com/top10",
			Snippet:  "A listicle.",
		},
		{
			Position: 4,
			Title:    "Basmati wholesale - Alibaba",
			Link:     "https://www.alibaba.com/showroom/basmati",
			Snippet:  "Marketplace result.",
		},
	})

	serp := NewSerpClient("test-key", WithSerpBaseURL(srv.URL))
	d := NewDiscovery(serp, nil)

	got, err := d.Buyers(context.Background(), "basmati rice", []string{"Germany"})
	require.NoError(t, err)
	require.Len(t, got, 2, "listicle and marketplace hits are filtered out")

	assert.Equal(t, "Golden Grain", got[0].CompanyName, "richer contact data ranks first")
	assert.Equal(t, "purchasing@golden-grain.de", got[0].Email)
	assert.NotEmpty(t, got[0].Phone)
	assert.Equal(t, "Germany", got[0].Country)
	assert.Greater(t, got[0].QualityScore, got[1].QualityScore)

	assert.Equal(t, "Hansa Imports", got[1].CompanyName)
}

func TestBuyersRequiresProduct(t *testing.T) {
	d := NewDiscovery(NewSerpClient("key"), nil)
	_, err := d.Buyers(context.Background(), "  ", nil)
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestBuyersBadKeyAborts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	serp := NewSerpClient("bad-key", WithSerpBaseURL(srv.URL))
	d := NewDiscovery(serp, nil)

	_, err := d.Buyers(context.Background(), "basmati rice", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrPermanent))
	assert.Equal(t, int32(1), calls.Load(), "a permanent error aborts the batch")
}

func TestBuyersRateLimitKeepsPartial(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			json.NewEncoder(w).Encode(serpResponse{OrganicResults: []OrganicHit{{
				Title:   "Golden Grain Trading - basmati importer",
				Link:    "https://www.golden-grain.de",
				Snippet: "Contact purchasing@golden-grain.de for offers.",
			}}})
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	serp := NewSerpClient("key", WithSerpBaseURL(srv.URL))
	d := NewDiscovery(serp, nil)

	got, err := d.Buyers(context.Background(), "basmati rice", nil)
	require.NoError(t, err, "rate limiting keeps what was found")
	require.Len(t, got, 1)
	assert.Equal(t, "Golden Grain", got[0].CompanyName)
	assert.Equal(t, int32(2), calls.Load(), "the batch stops on the first 429")
}

func TestCandidateSetDedup(t *testing.T) {
	set := newCandidateSet(10)
	set.add(&models.LeadCandidate{CompanyName: "Acme Foods", Email: "a@acme.com", QualityScore: 40})
	set.add(&models.LeadCandidate{CompanyName: "acme foods", Email: "other@acme.com", QualityScore: 90})
	set.add(&models.LeadCandidate{CompanyName: "Different Co", Email: "A@ACME.COM", QualityScore: 90})
	set.add(&models.LeadCandidate{CompanyName: "Hansa Imports", QualityScore: 70})

	got := set.sorted()
	require.Len(t, got, 2, "company and email keys both dedup, first-seen wins")
	assert.Equal(t, "Hansa Imports", got[0].CompanyName)
	assert.Equal(t, "Acme Foods", got[1].CompanyName)
}

func TestCandidateSetBounded(t *testing.T) {
	set := newCandidateSet(2)
	set.add(&models.LeadCandidate{CompanyName: "A", QualityScore: 10})
	set.add(&models.LeadCandidate{CompanyName: "Bb", QualityScore: 30})
	set.add(&models.LeadCandidate{CompanyName: "Cc", QualityScore: 20})

	got := set.sorted()
	require.Len(t, got, 2)
	assert.Equal(t, 30, got[0].QualityScore)
	assert.Equal(t, 20, got[1].QualityScore)
}

func TestQualityScore(t *testing.T) {
	t.Run("corporate email beats free mail", func(t *testing.T) {
		corp := qualityScore(&models.LeadCandidate{Email: "a@acme.com"}, true, nil)
		free := qualityScore(&models.LeadCandidate{Email: "a@gmail.com"}, false, nil)
		assert.Equal(t, 40, corp)
		assert.Equal(t, 25, free)
	})

	t.Run("full house caps at 100", func(t *testing.T) {
		c := &models.LeadCandidate{
			CompanyName: "Basmati Rice Imports",
			Email:       "a@acme.com",
			ExtraEmails: []string{"b@acme.com"},
			Phone:       "+49301234567",
			Website:     "https://acme.com",
			Country:     "Germany",
			Snippet:     "basmati rice importer",
		}
		got := qualityScore(c, true, []string{"basmati", "rice"})
		assert.Equal(t, 100, got)
	})

	t.Run("keyword overlap is proportional", func(t *testing.T) {
		c := &models.LeadCandidate{CompanyName: "Rice House", Snippet: "importer"}
		got := qualityScore(c, false, []string{"basmati", "rice"})
		assert.Equal(t, 12, got, "one of two keywords matched")
	})
}

func TestAppendToClients(t *testing.T) {
	db, err := database.OpenAndMigrate(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	clients := repository.NewClientRepository(db)
	ctx := context.Background()

	email := "taken@acme.com"
	_, err = clients.Create(ctx, &models.Client{
		CompanyName: "Existing", Email: &email, DateAdded: time.Now().UTC(),
	})
	require.NoError(t, err)

	d := NewDiscovery(NewSerpClient("key"), clients)
	created, err := d.AppendToClients(ctx, []*models.LeadCandidate{
		{CompanyName: "Golden Grain Trading", Email: "buy@golden-grain.de", Country: "Germany"},
		{CompanyName: "Duplicate Lead", Email: "taken@acme.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, created, "existing addresses are skipped")

	lead, err := clients.GetByEmail(ctx, "buy@golden-grain.de")
	require.NoError(t, err)
	assert.Equal(t, "Lead", lead.Status)
	require.NotNil(t, lead.Country)
	assert.Equal(t, "Germany", *lead.Country)
}
