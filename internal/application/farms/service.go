package farms

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Fairfood/Navigate-Server/internal/application/geometry"
	"github.com/Fairfood/Navigate-Server/internal/domain"
	"github.com/Fairfood/Navigate-Server/internal/pkg/validation"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Enqueuer schedules farms for (re)analysis inside the caller's transaction.
type Enqueuer interface {
	EnqueueTx(tx *gorm.DB, farmIDs ...uuid.UUID) (*domain.AnalysisQueue, error)
}

// Service is the farm CRUD surface. Creating or editing a farm queues it for analysis.
type Service struct {
	DB       *gorm.DB
	Queue    Enqueuer
	Resolver *geometry.Resolver // optional; when set, geometry is checked before it is stored
}

type CreateFarmInput struct {
	FarmerID       uuid.UUID
	ExternalID     string
	GeoJSON        []byte
	AnalysisRadius *float64
	Address        domain.Address
}

// UpdateFarmInput holds the fields to change; nil leaves a field as is.
type UpdateFarmInput struct {
	ExternalID     *string
	GeoJSON        []byte
	AnalysisRadius *float64
	Street         *string
	City           *string
	State          *string
	Country        *string
	ZipCode        *string
}

type CommentInput struct {
	Comment string
	FileURL *string
	Source  string
	Pillar  domain.Pillar
}

func (s *Service) checkGeometry(raw []byte) error {
	if s.Resolver == nil {
		return nil
	}
	_, err := s.Resolver.Resolve(raw)
	return err
}

func (s *Service) ownedFarmer(tx *gorm.DB, companyID, farmerID uuid.UUID) error {
	var n int64
	if err := tx.Model(&domain.Farmer{}).Where("id = ? AND company_id = ?", farmerID, companyID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("farmer %s: %w", farmerID, ErrNotFound)
	}
	return nil
}

// CreateFarm stores a farm for one of the company's farmers and queues its analysis.
func (s *Service) CreateFarm(ctx context.Context, companyID uuid.UUID, in CreateFarmInput) (*domain.Farm, error) {
	if companyID == uuid.Nil {
		return nil, ErrCompanyRequired
	}
	if !validation.IsValidExternalID(in.ExternalID) {
		return nil, invalid("external_id is required and must be at most 100 printable characters")
	}
	if in.AnalysisRadius != nil && !validation.IsValidRadius(*in.AnalysisRadius) {
		return nil, invalid("analysis_radius must be a non-negative number of meters")
	}
	if err := s.checkGeometry(in.GeoJSON); err != nil {
		return nil, err
	}
	farm := &domain.Farm{
		FarmerID:       in.FarmerID,
		ExternalID:     in.ExternalID,
		GeoJSON:        datatypes.JSON(in.GeoJSON),
		AnalysisRadius: in.AnalysisRadius,
		Address:        in.Address,
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ownedFarmer(tx, companyID, in.FarmerID); err != nil {
			return err
		}
		if err := tx.Create(farm).Error; err != nil {
			return fmt.Errorf("Failed to create farm: %w", err)
		}
		if _, err := s.Queue.EnqueueTx(tx, farm.ID); err != nil {
			return fmt.Errorf("Failed to queue farm analysis: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return farm, nil
}

// UpdateFarm edits a farm and queues it for re-analysis.
func (s *Service) UpdateFarm(ctx context.Context, companyID, farmID uuid.UUID, in UpdateFarmInput) (*domain.Farm, error) {
	farm, err := s.GetFarm(ctx, companyID, farmID)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if in.ExternalID != nil {
		if !validation.IsValidExternalID(*in.ExternalID) {
			return nil, invalid("external_id must be at most 100 printable characters")
		}
		updates["external_id"] = *in.ExternalID
	}
	if in.GeoJSON != nil {
		if err := s.checkGeometry(in.GeoJSON); err != nil {
			return nil, err
		}
		updates["geo_json"] = datatypes.JSON(in.GeoJSON)
	}
	if in.AnalysisRadius != nil {
		if !validation.IsValidRadius(*in.AnalysisRadius) {
			return nil, invalid("analysis_radius must be a non-negative number of meters")
		}
		updates["analysis_radius"] = *in.AnalysisRadius
	}
	for col, v := range map[string]*string{
		"street": in.Street, "city": in.City, "state": in.State, "country": in.Country, "zip_code": in.ZipCode,
	} {
		if v != nil {
			updates[col] = *v
		}
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(farm).Updates(updates).Error; err != nil {
				return fmt.Errorf("Failed to update farm: %w", err)
			}
		}
		if _, err := s.Queue.EnqueueTx(tx, farm.ID); err != nil {
			return fmt.Errorf("Failed to queue farm analysis: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetFarm(ctx, companyID, farmID)
}

// GetFarm returns a farm of the company with its farmer and latest properties.
func (s *Service) GetFarm(ctx context.Context, companyID, farmID uuid.UUID) (*domain.Farm, error) {
	if companyID == uuid.Nil {
		return nil, ErrCompanyRequired
	}
	var farm domain.Farm
	q := Filter{CompanyID: companyID}.Apply(s.DB.WithContext(ctx).Model(&domain.Farm{}))
	err := q.Preload("Farmer").Preload("Property").Where("farms.id = ?", farmID).First(&farm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &farm, nil
}

// ListFarms returns one page of farms matching filter and the total match count.
func (s *Service) ListFarms(ctx context.Context, filter Filter, page, limit int) ([]domain.Farm, int64, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if page < 1 {
		page = 1
	}
	var total int64
	if err := filter.Apply(s.DB.WithContext(ctx).Model(&domain.Farm{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []domain.Farm
	err := filter.Apply(s.DB.WithContext(ctx).Model(&domain.Farm{})).
		Preload("Property").
		Order("farms.created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// Reanalyze queues a fresh analysis for one farm.
func (s *Service) Reanalyze(ctx context.Context, companyID, farmID uuid.UUID) (*domain.AnalysisQueue, error) {
	farm, err := s.GetFarm(ctx, companyID, farmID)
	if err != nil {
		return nil, err
	}
	return s.Queue.EnqueueTx(s.DB.WithContext(ctx), farm.ID)
}

// AddComment attaches a note to a farm under a pillar.
func (s *Service) AddComment(ctx context.Context, companyID, farmID uuid.UUID, in CommentInput) (*domain.FarmComment, error) {
	if strings.TrimSpace(in.Comment) == "" {
		return nil, invalid("comment is required")
	}
	if in.FileURL != nil && !validation.IsValidFileURL(*in.FileURL) {
		return nil, invalid("file_url must be an http(s) URL")
	}
	if in.Pillar != "" && !validation.IsValidPillar(string(in.Pillar)) {
		return nil, invalid("pillar must be an upper case label such as DEFORESTATION")
	}
	if _, err := s.GetFarm(ctx, companyID, farmID); err != nil {
		return nil, err
	}
	pillar := in.Pillar
	if pillar == "" {
		pillar = domain.PillarDeforestation
	}
	c := &domain.FarmComment{
		FarmID:  farmID,
		Comment: in.Comment,
		FileURL: in.FileURL,
		Source:  in.Source,
		Pillar:  pillar,
	}
	if err := s.DB.WithContext(ctx).Create(c).Error; err != nil {
		return nil, fmt.Errorf("Failed to add comment: %w", err)
	}
	return c, nil
}

// ListComments returns a farm's comments, newest first, optionally for one pillar.
func (s *Service) ListComments(ctx context.Context, companyID, farmID uuid.UUID, pillar domain.Pillar) ([]domain.FarmComment, error) {
	if _, err := s.GetFarm(ctx, companyID, farmID); err != nil {
		return nil, err
	}
	q := s.DB.WithContext(ctx).Where("farm_id = ?", farmID)
	if pillar != "" {
		q = q.Where("pillar = ?", pillar)
	}
	var out []domain.FarmComment
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
