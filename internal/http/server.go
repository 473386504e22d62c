package http

import (
	"net/http"
	"time"
)

// Start levanta el listener del broker y bloquea hasta que el server muera.
// Los timeouts acotan clientes lentos; un callback OAuth2 normal no debería
// acercarse a ninguno.
func Start(addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
