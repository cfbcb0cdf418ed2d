package httpapi

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
)

// ListenAndServe serves s's router on addr. Plain HTTP is only permitted
// when addr's host is localhost or a loopback address; every other host
// is served over TLS using cert.
func ListenAndServe(addr string, s *Server, cert tls.Certificate) error {
	router := NewRouter(s)

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("httpapi: invalid listen address %q: %w", addr, err)
	}

	if isLocalhost(host) {
		log.Infof("listening on %s (plain HTTP, localhost)", addr)
		return http.ListenAndServe(addr, router)
	}

	log.Infof("listening on %s (TLS)", addr)
	srv := &http.Server{
		Addr:      addr,
		Handler:   router,
		TLSConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
	}
	return srv.ListenAndServeTLS("", "")
}

func isLocalhost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
