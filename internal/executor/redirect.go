package executor

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"contentexpiry/internal/content"
	"contentexpiry/internal/domain"
)

var ErrInvalidURL = errors.New("invalid redirect url")

// ValidateRedirectURL accepts absolute http(s) URLs with a host and no userinfo.
func ValidateRedirectURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, ErrInvalidURL
	}
	if u.Hostname() == "" || u.User != nil {
		return nil, ErrInvalidURL
	}
	return u, nil
}

// Gate intercepts content-view requests for items carrying a stored redirect target.
// Only the stored target is ever used as a destination.
type Gate struct {
	items content.Store
}

func NewGate(items content.Store) *Gate {
	return &Gate{items: items}
}

// Middleware reads the content id from the named chi URL parameter. Requests for
// items without a valid stored target fall through to next.
func (g *Gate) Middleware(idParam string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := strconv.ParseInt(chi.URLParam(r, idParam), 10, 64)
			if err != nil || id <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			target, err := g.items.GetMeta(r.Context(), id, domain.RedirectMetaKey)
			if err != nil {
				log.Warn().Err(err).Int64("post_id", id).Msg("redirect lookup failed")
				next.ServeHTTP(w, r)
				return
			}
			u, err := ValidateRedirectURL(target)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			http.Redirect(w, r, u.String(), http.StatusMovedPermanently)
		})
	}
}
