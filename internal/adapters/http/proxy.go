package http

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/devploy/playground-paas/internal/core/domain"
	"github.com/devploy/playground-paas/internal/core/orchestrator"
)

// ProxyHandler routes subdomain traffic (app-name.public-host) to the
// deployment's host port. Every proxied request counts as access: it bumps
// the deployment's last-accessed time so the inactivity monitor keeps the
// app alive while it is in use.
type ProxyHandler struct {
	orch *orchestrator.Orchestrator
}

func NewProxyHandler(orch *orchestrator.Orchestrator) *ProxyHandler {
	return &ProxyHandler{orch: orch}
}

// ProxyRequest intercepts requests to subdomains (e.g. app-name.localhost)
// and routes them to the corresponding deployment.
func (h *ProxyHandler) ProxyRequest(c *fiber.Ctx) error {
	host := c.Hostname()

	parts := strings.Split(host, ".")
	if len(parts) < 2 {
		return c.Next()
	}
	subdomain := parts[0]
	if subdomain == "www" || subdomain == "" {
		return c.Next()
	}

	rec, err := h.orch.Status(subdomain)
	if err != nil || rec.Status != domain.StatusRunning {
		return c.Status(fiber.StatusNotFound).SendString(fmt.Sprintf("App '%s' not found or not running", subdomain))
	}

	h.orch.Touch(subdomain)

	targetURL := fmt.Sprintf("http://127.0.0.1:%d", rec.HostPort)
	remote, err := url.Parse(targetURL)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Invalid target URL")
	}

	proxy := httputil.NewSingleHostReverseProxy(remote)

	// Rewrite the Host header to the target so the application inside the
	// container sees a host it recognizes.
	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.Host = remote.Host
		req.URL.Host = remote.Host
		req.URL.Scheme = remote.Scheme
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(fmt.Sprintf("Proxy Info: target=%s error=%v", targetURL, err)))
	}

	return adaptor.HTTPHandler(proxy)(c)
}
