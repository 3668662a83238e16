package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/solaris-scheduler/internal/http/response"
	"github.com/diagnosis/solaris-scheduler/pkg/logger"
	"github.com/diagnosis/solaris-scheduler/services/gateway/internal/proxy"
)

// Upstream is the part of proxy.ServiceProxy the handlers rely on.
type Upstream interface {
	Name() string
	ProxyRequest(ctx context.Context, method, pathAndQuery string, body io.Reader, headers http.Header) (*http.Response, error)
}

type Handlers struct {
	auth         Upstream
	appointments Upstream
}

func New(auth, appointments Upstream) *Handlers {
	return &Handlers{auth: auth, appointments: appointments}
}

// Routes forwards the public API prefixes unchanged. Upstreams do their own
// authentication, so the gateway never parses tokens.
func (h *Handlers) Routes(r chi.Router) {
	r.Handle("/api/auth/*", h.forward(h.auth))
	r.Handle("/api/appointments", h.forward(h.appointments))
	r.Handle("/api/appointments/*", h.forward(h.appointments))
}

func (h *Handlers) forward(up Upstream) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		target := r.URL.EscapedPath()
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}

		resp, err := up.ProxyRequest(r.Context(), r.Method, target, r.Body, r.Header)
		if err != nil {
			logger.ErrorContext(r.Context(), "Service proxy error", "service", up.Name(), "error", err, "path", target)
			response.WriteError(w, http.StatusBadGateway, "Service unavailable", CodeUpstream)
			return
		}
		defer resp.Body.Close()

		proxy.CopyHeaders(w.Header(), resp.Header)
		w.WriteHeader(resp.StatusCode)

		if _, err := io.Copy(w, resp.Body); err != nil {
			logger.ErrorContext(r.Context(), "Failed to copy response body", "service", up.Name(), "error", err)
		}
	}
}

const CodeUpstream = "UPSTREAM_UNAVAILABLE"
