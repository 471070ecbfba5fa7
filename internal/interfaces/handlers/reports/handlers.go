package reports

import (
	"errors"

	farmsvc "github.com/Fairfood/Navigate-Server/internal/application/farms"
	"github.com/Fairfood/Navigate-Server/internal/application/report"
	"github.com/Fairfood/Navigate-Server/internal/domain"
	"github.com/Fairfood/Navigate-Server/internal/middleware"
	"github.com/Fairfood/Navigate-Server/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Composer *report.Composer
}

func (h *Handlers) filter(c *fiber.Ctx) (farmsvc.Filter, error) {
	return farmsvc.FilterFromQuery(middleware.CompanyID(c), func(k string) string { return c.Query(k) })
}

// GET /api/v1/reports/stats
func (h *Handlers) Stats(c *fiber.Ctx) error {
	f, err := h.filter(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	data, err := h.Composer.Stats(c.UserContext(), f)
	if err != nil {
		return err
	}
	return response.Success(c, "Stats fetched successfully", data, nil)
}

// GET /api/v1/reports/compliance
func (h *Handlers) Compliance(c *fiber.Ctx) error {
	f, err := h.filter(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	data, err := h.Composer.Compliance(c.UserContext(), f)
	if err != nil {
		return err
	}
	return response.Success(c, "Compliance report fetched successfully", data, nil)
}

// GET /api/v1/reports/detail?standard=&label=
func (h *Handlers) Detail(c *fiber.Ctx) error {
	f, err := h.filter(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	data, err := h.Composer.Detail(c.UserContext(), f, c.Query("standard"), domain.Pillar(c.Query("label")))
	if errors.Is(err, report.ErrUnknownStandard) {
		return response.BadRequest(c, "Unknown standard: "+c.Query("standard"))
	}
	if err != nil {
		return err
	}
	return response.Success(c, "Detail report fetched successfully", data, nil)
}
