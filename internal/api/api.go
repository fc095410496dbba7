package api

import (
	"errors"
	"net/http"

	"steam-auth-backend/internal/config"
	"steam-auth-backend/internal/services/authdata"
	"steam-auth-backend/internal/services/events"
	"steam-auth-backend/internal/services/inventory"
	"steam-auth-backend/internal/services/panel"
	steamService "steam-auth-backend/internal/services/steam"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type APIHandler struct {
	db           *gorm.DB
	cfg          *config.Config
	steamService *steamService.SteamService
	authData     *authdata.Service
	inventory    *inventory.Service
	panel        *panel.Notifier
	events       *events.Hub
}

type Deps struct {
	DB     *gorm.DB
	Config *config.Config
	Steam  *steamService.SteamService
	Panel  *panel.Notifier
	Events *events.Hub
}

func SetupRoutes(r *gin.RouterGroup, deps Deps) *APIHandler {
	handler := &APIHandler{
		db:           deps.DB,
		cfg:          deps.Config,
		steamService: deps.Steam,
		authData:     authdata.NewService(deps.DB),
		inventory:    inventory.NewService(deps.DB, deps.Steam),
		panel:        deps.Panel,
		events:       deps.Events,
	}

	r.GET("/health", handler.Health)

	auth := r.Group("/api/auth")
	{
		auth.GET("/steam", handler.SteamLogin)
		auth.GET("/steam/callback", handler.SteamCallback)
		auth.GET("/records", handler.ListAuthRecords)
		auth.GET("/export", handler.ExportAuthRecords)
		auth.GET("/events", handler.AuthEvents)
	}

	inv := r.Group("/inventory")
	{
		inv.POST("/:steam_id", handler.CreateInventory)
		inv.GET("/:steam_id", handler.GetInventory)
		inv.PUT("/refetch/:steam_id", handler.RefetchInventory)
	}

	return handler
}

func (h *APIHandler) Health(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		log.WithError(err).Error("health check: database unreachable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps service errors onto HTTP statuses. Database and other
// unexpected failures are logged and reported without detail.
func writeError(c *gin.Context, err error) {
	var panelStatus *panel.StatusError
	switch {
	case errors.As(err, &panelStatus):
		c.JSON(panelStatus.Code, gin.H{"error": "main panel rejected the auth event"})
	case errors.Is(err, steamService.ErrInvalidSteamID):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid steam id"})
	case errors.Is(err, steamService.ErrInvalidOpenID):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "steam could not verify the login"})
	case errors.Is(err, steamService.ErrPlayerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case errors.Is(err, inventory.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "inventory not found"})
	case errors.Is(err, steamService.ErrTransport), errors.Is(err, steamService.ErrUpstream):
		log.WithError(err).Warn("steam request failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch data from Steam"})
	case errors.Is(err, panel.ErrTransport):
		log.WithError(err).Warn("main panel request failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to reach main panel"})
	default:
		log.WithError(err).Error("internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
	}
	_ = c.Error(err)
}
