package api

import (
	"net/http"

	steamService "steam-auth-backend/internal/services/steam"

	"github.com/gin-gonic/gin"
)

func steamIDParam(c *gin.Context) (string, bool) {
	steamID := c.Param("steam_id")
	if !steamService.ValidSteamID(steamID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid steam id"})
		return "", false
	}
	return steamID, true
}

// CreateInventory fetches the inventory from Steam and stores it.
func (h *APIHandler) CreateInventory(c *gin.Context) {
	steamID, ok := steamIDParam(c)
	if !ok {
		return
	}
	inv, err := h.inventory.Refresh(c.Request.Context(), steamID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (h *APIHandler) GetInventory(c *gin.Context) {
	steamID, ok := steamIDParam(c)
	if !ok {
		return
	}
	inv, err := h.inventory.Get(c.Request.Context(), steamID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

// RefetchInventory replaces an already stored inventory with a fresh copy.
func (h *APIHandler) RefetchInventory(c *gin.Context) {
	steamID, ok := steamIDParam(c)
	if !ok {
		return
	}
	inv, err := h.inventory.Refetch(c.Request.Context(), steamID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}
