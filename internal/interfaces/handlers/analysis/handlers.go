package analysis

import (
	"context"
	"errors"
	"strconv"

	analysissvc "github.com/Fairfood/Navigate-Server/internal/application/analysis"
	farmsvc "github.com/Fairfood/Navigate-Server/internal/application/farms"
	"github.com/Fairfood/Navigate-Server/internal/domain"
	farmhandler "github.com/Fairfood/Navigate-Server/internal/interfaces/handlers/farms"
	"github.com/Fairfood/Navigate-Server/internal/middleware"
	"github.com/Fairfood/Navigate-Server/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// SyncRunner runs one sync cycle.
type SyncRunner interface {
	RunSyncCycle(ctx context.Context) (*analysissvc.CycleResult, error)
}

type Handlers struct {
	Sync  SyncRunner
	Store *analysissvc.JobStore
	Farms *farmsvc.Service
}

// POST /api/v1/analysis/sync runs one cycle. Contention is reported, not failed.
func (h *Handlers) RunSync(c *fiber.Ctx) error {
	res, err := h.Sync.RunSyncCycle(c.UserContext())
	if errors.Is(err, analysissvc.ErrLockContention) {
		return response.Success(c, "Sync already running elsewhere", res, nil)
	}
	if err != nil {
		return err
	}
	return response.Success(c, "Sync cycle finished", res, nil)
}

// GET /api/v1/analysis/queue?status=&limit=
func (h *Handlers) ListQueue(c *fiber.Ctx) error {
	var status *domain.SyncStatus
	if s := c.Query("status"); s != "" {
		st, ok := domain.ParseSyncStatus(s)
		if !ok {
			return response.BadRequest(c, "Invalid status: "+s)
		}
		status = &st
	}
	limit, _ := strconv.Atoi(c.Query("limit", "100"))
	entries, err := h.Store.List(c.UserContext(), status, limit)
	if err != nil {
		return err
	}
	counts, err := h.Store.CountByStatus(c.UserContext())
	if err != nil {
		return err
	}
	return response.Success(c, "Analysis queue fetched successfully", entries, fiber.Map{"counts": counts})
}

// POST /api/v1/analysis/farms/:id/reanalyze
func (h *Handlers) Reanalyze(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.BadRequest(c, "Invalid farm id")
	}
	entry, err := h.Farms.Reanalyze(c.UserContext(), middleware.CompanyID(c), id)
	if err != nil {
		return farmhandler.WriteError(c, err)
	}
	return response.Accepted(c, "Farm queued for analysis", entry)
}
