package handlers

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/BradenHooton/bastion/internal/auth"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// AdminSecretHeader authenticates the relay to the backend admin API
const AdminSecretHeader = "X-Admin-Secret"

// AdminProxy relays authenticated /api/admin/* calls to the backend.
// It must be mounted behind RequireAdminSession.
type AdminProxy struct {
	proxy  *httputil.ReverseProxy
	logger *slog.Logger
}

// NewAdminProxy builds a relay to backend that injects secret on every outbound request
func NewAdminProxy(backend *url.URL, secret string, logger *slog.Logger) *AdminProxy {
	p := &AdminProxy{logger: logger}

	p.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(backend)
			pr.SetXForwarded()

			pr.Out.Header.Del(AdminSecretHeader)
			pr.Out.Header.Del("Cookie")
			pr.Out.Header.Set(AdminSecretHeader, secret)

			if principal := auth.GetPrincipalFromContext(pr.In); principal != nil {
				pr.Out.Header.Set("X-Admin-Id", principal.AdminID)
				pr.Out.Header.Set("X-Admin-Role", principal.Role)
			}
		},
		ModifyResponse: func(resp *http.Response) error {
			resp.Header.Del(AdminSecretHeader)
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("admin relay failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("error", redactSecret(err.Error(), secret)),
			)
			pkghttp.WriteError(w, http.StatusBadGateway, pkghttp.CodeInternal, "backend unavailable")
		},
	}
	return p
}

func (p *AdminProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if auth.GetPrincipalFromContext(r) == nil {
		pkghttp.WriteRetry(w, "authentication required")
		return
	}
	p.proxy.ServeHTTP(w, r)
}

func redactSecret(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "[REDACTED]")
}
