package automation

import (
	"errors"

	"orderbridge/internal/core/job"
	"orderbridge/internal/core/order"
	"orderbridge/internal/telemetry"
	"orderbridge/internal/utils/parser"

	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	service *Service
	logs    *telemetry.Log
}

func NewHandler(service *Service, logs *telemetry.Log) *Handler {
	return &Handler{service: service, logs: logs}
}

type createQuery struct {
	Async bool `form:"async"`
}

type connectionQuery struct {
	Backend string `form:"backend"`
}

type logsQuery struct {
	N      int    `form:"n" default:"100"`
	Level  string `form:"level"`
	Module string `form:"module"`
}

// HandleCreate places an order. With ?async=true it answers 202 with a job
// ID; otherwise it waits for the run and returns the AutomationResult.
func (h *Handler) HandleCreate(c *fiber.Ctx) error {
	var q createQuery
	if err := parser.ParseQuery(c, &q); err != nil {
		return badRequest(c, err)
	}
	var req order.OrderRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, errors.New("invalid body"))
	}

	if q.Async {
		id, err := h.service.Enqueue(c.UserContext(), req)
		if err != nil {
			if errors.Is(err, order.ErrInvalidRequest) || errors.Is(err, ErrUnknownBackend) {
				return badRequest(c, err)
			}
			return c.Status(fiber.StatusInternalServerError).JSON(order.Failure(err, ""))
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"success": true,
			"job_id":  id,
			"status":  job.StatusPending,
		})
	}

	if err := req.Validate(); err != nil {
		return badRequest(c, err)
	}
	if _, _, err := h.service.backend(req.Backend); err != nil {
		return badRequest(c, err)
	}
	res := h.service.ProcessOrder(c.UserContext(), req)
	if !res.Success {
		return c.Status(fiber.StatusBadGateway).JSON(res)
	}
	return c.JSON(res)
}

func (h *Handler) HandleGet(c *fiber.Ctx) error {
	j, err := h.service.Job(c.UserContext(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "error": "not_found"})
	}
	if !j.Status.Done() {
		return c.Status(fiber.StatusAccepted).JSON(j)
	}
	return c.JSON(j)
}

func (h *Handler) HandleConnection(c *fiber.Ctx) error {
	var q connectionQuery
	if err := parser.ParseQuery(c, &q); err != nil {
		return badRequest(c, err)
	}
	ok, err := h.service.TestConnection(c.UserContext(), q.Backend)
	if err != nil {
		return badRequest(c, err)
	}
	status := fiber.StatusOK
	if !ok {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{"success": ok})
}

func (h *Handler) HandleLogs(c *fiber.Ctx) error {
	var q logsQuery
	if err := parser.ParseQuery(c, &q); err != nil {
		return badRequest(c, err)
	}
	var level telemetry.Level
	if q.Level != "" {
		lv, ok := telemetry.ParseLevel(q.Level)
		if !ok {
			return badRequest(c, errors.New("unknown level "+q.Level))
		}
		level = lv
	}
	entries := h.logs.Query(level, q.Module, q.N)
	return c.JSON(fiber.Map{"success": true, "count": len(entries), "logs": entries})
}

func (h *Handler) HandleLogStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success":  true,
		"total":    h.logs.Len(),
		"capacity": h.logs.Capacity(),
		"levels":   h.logs.Stats(),
	})
}

func (h *Handler) HandleClearLogs(c *fiber.Ctx) error {
	h.logs.Clear()
	return c.SendStatus(fiber.StatusNoContent)
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(order.Failure(err, ""))
}
