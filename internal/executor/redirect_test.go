package executor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentexpiry/internal/domain"
)

func TestValidateRedirectURL(t *testing.T) {
	valid := []string{"https://example.com", "http://example.com/a?b=c", " https://sub.example.org:8443/x "}
	for _, raw := range valid {
		_, err := ValidateRedirectURL(raw)
		assert.NoError(t, err, raw)
	}
	invalid := []string{"", "example.com/path", "/relative", "ftp://example.com", "https://", "https://user:pw@example.com", "mailto:a@example.com"}
	for _, raw := range invalid {
		_, err := ValidateRedirectURL(raw)
		assert.ErrorIs(t, err, ErrInvalidURL, raw)
	}
}

func TestGate_RedirectsToStoredTarget(t *testing.T) {
	ctx := context.Background()
	items := newItems(t)
	redirected := seed(t, items)
	plain := seed(t, items)
	broken := seed(t, items)
	require.NoError(t, items.SetMeta(ctx, redirected, domain.RedirectMetaKey, "https://elsewhere.example.net/landing"))
	require.NoError(t, items.SetMeta(ctx, broken, domain.RedirectMetaKey, "not-a-url"))

	gate := NewGate(items)
	r := chi.NewRouter()
	r.With(gate.Middleware("id")).Get("/content/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	cases := []struct {
		path     string
		code     int
		location string
	}{
		{"/content/" + itoa(redirected), http.StatusMovedPermanently, "https://elsewhere.example.net/landing"},
		{"/content/" + itoa(plain), http.StatusOK, ""},
		{"/content/" + itoa(broken), http.StatusOK, ""},
		{"/content/abc", http.StatusOK, ""},
		{"/content/" + itoa(redirected) + "?redirect_to=https://attacker.example", http.StatusMovedPermanently, "https://elsewhere.example.net/landing"},
		{"/content/" + itoa(plain) + "?redirect_to=https://attacker.example", http.StatusOK, ""},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tc.path, nil))
		assert.Equal(t, tc.code, rr.Code, tc.path)
		assert.Equal(t, tc.location, rr.Header().Get("Location"), tc.path)
	}
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
