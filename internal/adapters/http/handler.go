package http

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/devploy/playground-paas/internal/core/domain"
	"github.com/devploy/playground-paas/internal/core/orchestrator"
	"github.com/devploy/playground-paas/internal/core/ports"
)

// DeploymentHandler exposes the orchestrator over the REST API consumed by
// the dashboard.
type DeploymentHandler struct {
	orch    *orchestrator.Orchestrator
	catalog ports.Catalog
	owner   string
	logger  *slog.Logger
}

func NewDeploymentHandler(orch *orchestrator.Orchestrator, catalog ports.Catalog, owner string, logger *slog.Logger) *DeploymentHandler {
	return &DeploymentHandler{orch: orch, catalog: catalog, owner: owner, logger: logger}
}

// Register mounts all API routes on the given router group.
func (h *DeploymentHandler) Register(v1 fiber.Router) {
	deployments := v1.Group("/deployments")
	deployments.Get("/", h.ListActive)
	deployments.Post("/", h.Deploy)
	deployments.Get("/:name", h.Status)
	deployments.Delete("/:name", h.Stop)
	deployments.Get("/:name/logs", h.Logs)

	v1.Get("/apps", h.ListApps)
	v1.Get("/history", h.History)
}

type DeployRequest struct {
	AppName    string `json:"app_name"`
	Repository string `json:"repository"`
}

func (h *DeploymentHandler) Deploy(c *fiber.Ctx) error {
	var req DeployRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	rec, err := h.orch.Deploy(c.Context(), req.AppName, req.Repository)
	if err != nil {
		return h.deployError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(rec)
}

func (h *DeploymentHandler) deployError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, domain.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, domain.ErrPortExhausted):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}

func (h *DeploymentHandler) Stop(c *fiber.Ctx) error {
	name := c.Params("name")
	if name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "App name is required",
		})
	}

	if err := h.orch.Stop(c.Context(), name); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "stopped", "app_name": name})
}

func (h *DeploymentHandler) Status(c *fiber.Ctx) error {
	rec, err := h.orch.Status(c.Params("name"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(rec)
}

func (h *DeploymentHandler) ListActive(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"active": h.orch.ListActive()})
}

func (h *DeploymentHandler) History(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	entries, err := h.orch.History(c.Context(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"deployments": entries})
}

func (h *DeploymentHandler) Logs(c *fiber.Ctx) error {
	logs, err := h.orch.Logs(c.Context(), c.Params("name"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	c.Set("Content-Type", "text/plain")
	return c.SendStream(logs)
}

// ListApps serves the catalog. Catalog failure is non-fatal to the
// orchestrator; it maps to 503 here and nothing else.
func (h *DeploymentHandler) ListApps(c *fiber.Ctx) error {
	apps, err := h.catalog.ListApps(c.Context(), h.owner)
	if err != nil {
		h.logger.Warn("catalog unavailable", "error", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": domain.ErrCatalogUnavailable.Error()})
	}
	return c.JSON(fiber.Map{"apps": apps})
}
