package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuthData records the latest Steam login seen for a Steam account.
type AuthData struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserIP    string    `json:"user_ip" gorm:"size:64"`
	SteamID   string    `json:"steam_id" gorm:"size:32;not null;uniqueIndex"`
	Username  string    `json:"username" gorm:"size:255"`
	DomainID  int       `json:"domain_id" gorm:"index;not null;default:1"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AuthData) TableName() string {
	return "auth_data"
}

// Inventory is a cached snapshot of a Steam account's CS inventory, stored
// exactly as the community endpoint returned it.
type Inventory struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	SteamID     string         `json:"steam_id" gorm:"size:32;not null;uniqueIndex"`
	Skins       datatypes.JSON `json:"skins"`
	LastUpdated time.Time      `json:"last_updated" gorm:"autoUpdateTime"`
}

func (Inventory) TableName() string {
	return "inventory"
}

// All lists every model the schema migration manages.
func All() []interface{} {
	return []interface{}{&AuthData{}, &Inventory{}}
}
