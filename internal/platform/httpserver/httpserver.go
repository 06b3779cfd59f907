package httpserver

import (
	"net/http"
	"time"
)

// New builds the service's HTTP server. Per-request deadlines come from the
// router's timeout middleware; these bound slow clients at the socket level.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
