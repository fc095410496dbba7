package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"steam-auth-backend/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("inventory not found")

// Fetcher downloads a raw inventory document for a Steam id.
type Fetcher interface {
	FetchInventory(ctx context.Context, steamID string) ([]byte, error)
}

type Service struct {
	db      *gorm.DB
	fetcher Fetcher
}

func NewService(db *gorm.DB, fetcher Fetcher) *Service {
	return &Service{db: db, fetcher: fetcher}
}

// Get returns the stored snapshot or ErrNotFound.
func (s *Service) Get(ctx context.Context, steamID string) (*models.Inventory, error) {
	var inv models.Inventory
	err := s.db.WithContext(ctx).Where("steam_id = ?", steamID).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load inventory %s: %w", steamID, err)
	}
	return &inv, nil
}

// Save replaces the snapshot for steamID wholesale, inserting it when absent.
func (s *Service) Save(ctx context.Context, steamID string, skins []byte) (*models.Inventory, error) {
	row := models.Inventory{
		SteamID:     steamID,
		Skins:       datatypes.JSON(skins),
		LastUpdated: time.Now(),
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "steam_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"skins", "last_updated"}),
	}).Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("upsert inventory %s: %w", steamID, err)
	}
	return s.Get(ctx, steamID)
}

// Refresh pulls the current inventory from Steam and stores it.
func (s *Service) Refresh(ctx context.Context, steamID string) (*models.Inventory, error) {
	skins, err := s.fetcher.FetchInventory(ctx, steamID)
	if err != nil {
		return nil, err
	}
	return s.Save(ctx, steamID, skins)
}

// Refetch is Refresh for an inventory that must already be stored.
func (s *Service) Refetch(ctx context.Context, steamID string) (*models.Inventory, error) {
	if _, err := s.Get(ctx, steamID); err != nil {
		return nil, err
	}
	return s.Refresh(ctx, steamID)
}
