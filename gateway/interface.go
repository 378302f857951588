package gateway

import (
	"net/http"
	"strings"
)

// HTTPHandler is implemented by gateways that expose HTTP routes.
//
// The prefix parameter is the URL path prefix for the gateway instance
// (e.g., "/ws"). Implementations register every route below it.
type HTTPHandler interface {
	RegisterHTTPHandlers(prefix string, mux *http.ServeMux)
}

// NewMux returns a mux with every handler registered below prefix.
func NewMux(prefix string, handlers ...HTTPHandler) *http.ServeMux {
	mux := http.NewServeMux()
	prefix = "/" + strings.Trim(prefix, "/")
	for _, h := range handlers {
		if h != nil {
			h.RegisterHTTPHandlers(prefix, mux)
		}
	}
	return mux
}
