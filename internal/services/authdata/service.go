package authdata

import (
	"context"
	"fmt"
	"time"

	"steam-auth-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Filter selects auth records. Nil fields are not constrained.
type Filter struct {
	DomainID *int
	Username *string
	SteamID  *string
	UserIP   *string
	Limit    int
	Offset   int
}

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Save inserts the record or, when the Steam id is already known, overwrites
// its ip, username and domain in the same statement.
func (s *Service) Save(ctx context.Context, record *models.AuthData) (*models.AuthData, error) {
	now := time.Now()
	row := models.AuthData{
		UserIP:    record.UserIP,
		SteamID:   record.SteamID,
		Username:  record.Username,
		DomainID:  record.DomainID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx := s.db.WithContext(ctx)
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "steam_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_ip", "username", "domain_id", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("upsert auth data %s: %w", record.SteamID, err)
	}

	var stored models.AuthData
	if err := tx.Where("steam_id = ?", record.SteamID).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("reload auth data %s: %w", record.SteamID, err)
	}
	return &stored, nil
}

// List returns one page of records matching f, oldest first.
func (s *Service) List(ctx context.Context, f Filter) ([]models.AuthData, error) {
	rows := []models.AuthData{}
	if err := s.query(ctx, f).Order("id ASC").Limit(f.limit()).Offset(f.offset()).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list auth data: %w", err)
	}
	return rows, nil
}

// Each streams every record matching f (ignoring pagination) in batches.
func (s *Service) Each(ctx context.Context, f Filter, fn func(models.AuthData) error) error {
	var batch []models.AuthData
	res := s.query(ctx, f).FindInBatches(&batch, 500, func(_ *gorm.DB, _ int) error {
		for _, row := range batch {
			if err := fn(row); err != nil {
				return err
			}
		}
		return nil
	})
	if res.Error != nil {
		return fmt.Errorf("iterate auth data: %w", res.Error)
	}
	return nil
}

func (s *Service) query(ctx context.Context, f Filter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.AuthData{})
	if f.DomainID != nil {
		q = q.Where("domain_id = ?", *f.DomainID)
	}
	if f.Username != nil {
		q = q.Where("username = ?", *f.Username)
	}
	if f.SteamID != nil {
		q = q.Where("steam_id = ?", *f.SteamID)
	}
	if f.UserIP != nil {
		q = q.Where("user_ip = ?", *f.UserIP)
	}
	return q
}

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultLimit
	case f.Limit > MaxLimit:
		return MaxLimit
	default:
		return f.Limit
	}
}

func (f Filter) offset() int {
	if f.Offset < 0 {
		return 0
	}
	return f.Offset
}
