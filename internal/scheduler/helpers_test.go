package scheduler

import (
	"net/http"
	"net/http/httptest"
)

func httpHandler(fn func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fn()
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/content/1", nil))
	return rr
}
