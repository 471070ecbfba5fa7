package farms

import (
	"encoding/json"
	"errors"
	"strconv"

	farmsvc "github.com/Fairfood/Navigate-Server/internal/application/farms"
	"github.com/Fairfood/Navigate-Server/internal/application/geometry"
	"github.com/Fairfood/Navigate-Server/internal/domain"
	"github.com/Fairfood/Navigate-Server/internal/middleware"
	"github.com/Fairfood/Navigate-Server/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *farmsvc.Service
}

type farmBody struct {
	FarmerID       string          `json:"farmer_id"`
	ExternalID     *string         `json:"external_id"`
	GeoJSON        json.RawMessage `json:"geo_json"`
	AnalysisRadius *float64        `json:"analysis_radius"`
	Street         *string         `json:"street"`
	City           *string         `json:"city"`
	State          *string         `json:"state"`
	Country        *string         `json:"country"`
	ZipCode        *string         `json:"zip_code"`
}

type commentBody struct {
	Comment string  `json:"comment"`
	FileURL *string `json:"file_url"`
	Source  string  `json:"source"`
	Pillar  string  `json:"pillar"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// WriteError maps farm service errors onto HTTP responses.
func WriteError(c *fiber.Ctx, err error) error {
	var gerr *geometry.Error
	switch {
	case errors.Is(err, farmsvc.ErrNotFound):
		return response.Error(c, "Farm not found", fiber.StatusNotFound, nil)
	case errors.Is(err, farmsvc.ErrCompanyRequired), errors.Is(err, farmsvc.ErrInvalidInput):
		return response.BadRequest(c, err.Error())
	case errors.As(err, &gerr):
		return response.Error(c, gerr.Error(), fiber.StatusUnprocessableEntity, fiber.Map{"type": gerr.Type})
	default:
		return err
	}
}

func farmID(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(c.Params("id"))
}

// POST /api/v1/farms
func (h *Handlers) CreateFarm(c *fiber.Ctx) error {
	var body farmBody
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	farmerID, err := uuid.Parse(body.FarmerID)
	if err != nil {
		return response.BadRequest(c, "Missing required field: farmer_id")
	}
	if len(body.GeoJSON) == 0 {
		return response.BadRequest(c, "Missing required field: geo_json")
	}
	if deref(body.ExternalID) == "" {
		return response.BadRequest(c, "Missing required field: external_id")
	}
	farm, err := h.Service.CreateFarm(c.UserContext(), middleware.CompanyID(c), farmsvc.CreateFarmInput{
		FarmerID:       farmerID,
		ExternalID:     *body.ExternalID,
		GeoJSON:        body.GeoJSON,
		AnalysisRadius: body.AnalysisRadius,
		Address: domain.Address{
			Street:  deref(body.Street),
			City:    deref(body.City),
			State:   deref(body.State),
			Country: deref(body.Country),
			ZipCode: deref(body.ZipCode),
		},
	})
	if err != nil {
		return WriteError(c, err)
	}
	return response.SuccessCreated(c, "Farm created and queued for analysis", farm, nil)
}

// PATCH /api/v1/farms/:id
func (h *Handlers) UpdateFarm(c *fiber.Ctx) error {
	id, err := farmID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid farm id")
	}
	var body farmBody
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	in := farmsvc.UpdateFarmInput{
		ExternalID:     body.ExternalID,
		AnalysisRadius: body.AnalysisRadius,
		Street:         body.Street,
		City:           body.City,
		State:          body.State,
		Country:        body.Country,
		ZipCode:        body.ZipCode,
	}
	if len(body.GeoJSON) > 0 && string(body.GeoJSON) != "null" {
		in.GeoJSON = body.GeoJSON
	}
	farm, err := h.Service.UpdateFarm(c.UserContext(), middleware.CompanyID(c), id, in)
	if err != nil {
		return WriteError(c, err)
	}
	return response.Success(c, "Farm updated and queued for analysis", farm, nil)
}

// GET /api/v1/farms/:id
func (h *Handlers) GetFarm(c *fiber.Ctx) error {
	id, err := farmID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid farm id")
	}
	farm, err := h.Service.GetFarm(c.UserContext(), middleware.CompanyID(c), id)
	if err != nil {
		return WriteError(c, err)
	}
	return response.Success(c, "Farm fetched successfully", farm, nil)
}

// GET /api/v1/farms?country=&state=&farmer=&supply_chain=&batch=&page=&limit=
func (h *Handlers) ListFarms(c *fiber.Ctx) error {
	filter, err := farmsvc.FilterFromQuery(middleware.CompanyID(c), func(k string) string { return c.Query(k) })
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	list, total, err := h.Service.ListFarms(c.UserContext(), filter, page, limit)
	if err != nil {
		return WriteError(c, err)
	}
	if page < 1 {
		page = 1
	}
	return response.Success(c, "Farms fetched successfully", list, response.Page{Page: page, Limit: limit, Total: total})
}

// POST /api/v1/farms/:id/comments
func (h *Handlers) AddComment(c *fiber.Ctx) error {
	id, err := farmID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid farm id")
	}
	var body commentBody
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if body.Comment == "" {
		return response.BadRequest(c, "Missing required field: comment")
	}
	comment, err := h.Service.AddComment(c.UserContext(), middleware.CompanyID(c), id, farmsvc.CommentInput{
		Comment: body.Comment,
		FileURL: body.FileURL,
		Source:  body.Source,
		Pillar:  domain.Pillar(body.Pillar),
	})
	if err != nil {
		return WriteError(c, err)
	}
	return response.SuccessCreated(c, "Comment added", comment, nil)
}

// GET /api/v1/farms/:id/comments?pillar=
func (h *Handlers) ListComments(c *fiber.Ctx) error {
	id, err := farmID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid farm id")
	}
	comments, err := h.Service.ListComments(c.UserContext(), middleware.CompanyID(c), id, domain.Pillar(c.Query("pillar")))
	if err != nil {
		return WriteError(c, err)
	}
	return response.Success(c, "Comments fetched successfully", comments, nil)
}
