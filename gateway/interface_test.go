package gateway_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360/flowcanvas/gateway"
)

type recorder struct {
	prefixes []string
}

func (r *recorder) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	r.prefixes = append(r.prefixes, prefix)
	mux.HandleFunc(prefix+"/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestNewMux(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"/ws", "/ws"},
		{"ws/", "/ws"},
		{"/api/v1/", "/api/v1"},
	}
	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			rec := &recorder{}
			mux := gateway.NewMux(tt.prefix, rec, nil)
			assert.Equal(t, []string{tt.want}, rec.prefixes)

			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.want+"/ping", nil))
			assert.Equal(t, http.StatusNoContent, w.Code)
		})
	}
}
