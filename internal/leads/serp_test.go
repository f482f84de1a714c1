package leads

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exportdesk-io/exportdesk-ce/internal/models"
)

func TestSearchRequiresAPIKey(t *testing.T) {
	c := NewSerpClient("")
	_, err := c.Search(context.Background(), "anything", 10, "")
	assert.True(t, errors.Is(err, models.ErrConfiguration))
}

func TestSearchStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		kind   error
	}{
		{http.StatusUnauthorized, models.ErrPermanent},
		{http.StatusForbidden, models.ErrPermanent},
		{http.StatusTooManyRequests, models.ErrTransient},
		{http.StatusBadGateway, models.ErrTransient},
		{http.StatusTeapot, models.ErrPermanent},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		c := NewSerpClient("key", WithSerpBaseURL(srv.URL))
		_, err := c.Search(context.Background(), "q", 10, "")
		assert.True(t, errors.Is(err, tc.kind), "status %d", tc.status)
		srv.Close()
	}
}

func TestSearchRateLimitSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	c := NewSerpClient("key", WithSerpBaseURL(srv.URL))
	_, err := c.Search(context.Background(), "q", 10, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimited))
	assert.True(t, errors.Is(err, models.ErrTransient))
}

func TestSearchMalformedResponseIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"organic_results": [`))
	}))
	t.Cleanup(srv.Close)

	c := NewSerpClient("key", WithSerpBaseURL(srv.URL))
	_, err := c.Search(context.Background(), "q", 10, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrPermanent))
	assert.False(t, errors.Is(err, models.ErrTransient))
}

func TestSearchProviderErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": "Your searches for the month are exhausted."}`))
	}))
	t.Cleanup(srv.Close)

	c := NewSerpClient("key", WithSerpBaseURL(srv.URL))
	_, err := c.Search(context.Background(), "q", 10, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrPermanent))
	assert.Contains(t, err.Error(), "exhausted")
}

func TestSearchPassesRegion(t *testing.T) {
	var gl string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gl = r.URL.Query().Get("gl")
		w.Write([]byte(`{"organic_results": []}`))
	}))
	t.Cleanup(srv.Close)

	c := NewSerpClient("key", WithSerpBaseURL(srv.URL))
	hits, err := c.Search(context.Background(), "q", 5, "DE")
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, "de", gl)
}
