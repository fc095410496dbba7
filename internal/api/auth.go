package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"steam-auth-backend/internal/export"
	"steam-auth-backend/internal/models"
	"steam-auth-backend/internal/services/authdata"
	"steam-auth-backend/internal/services/panel"
	steamService "steam-auth-backend/internal/services/steam"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const maxExportRows = 10000

// SteamLogin returns the Steam OpenID URL the client should redirect to. An
// optional domain_id is carried through return_to back to the callback.
func (h *APIHandler) SteamLogin(c *gin.Context) {
	var extra url.Values
	if raw, ok := c.GetQuery("domain_id"); ok {
		if _, err := strconv.Atoi(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "domain_id must be an integer"})
			return
		}
		extra = url.Values{"domain_id": []string{raw}}
	}
	c.JSON(http.StatusOK, gin.H{"auth_url": h.steamService.AuthURL(h.cfg.SteamRedirectURI, extra)})
}

// SteamCallback handles Steam's OpenID redirect: it resolves the player,
// records the login, refreshes the inventory and notifies the main panel.
func (h *APIHandler) SteamCallback(c *gin.Context) {
	ctx := c.Request.Context()
	params := c.Request.URL.Query()

	claimedID := params.Get("openid.claimed_id")
	if claimedID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing openid.claimed_id parameter"})
		return
	}
	if params.Get("openid.mode") == "cancel" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "login cancelled"})
		return
	}

	domainID := h.cfg.DomainID
	raw := c.Query("domain_id")
	if h.cfg.SteamVerifyOpenID {
		// only the signed return_to may pick the domain
		raw = returnToQuery(params).Get("domain_id")
	}
	if raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "domain_id must be an integer"})
			return
		}
		domainID = n
	}

	var (
		steamID string
		err     error
	)
	if h.cfg.SteamVerifyOpenID {
		steamID, err = h.steamService.VerifyOpenID(ctx, params, h.cfg.SteamRedirectURI)
	} else {
		steamID, err = steamService.SteamIDFromClaimedID(claimedID)
	}
	if err != nil {
		writeError(c, err)
		return
	}

	player, err := h.steamService.GetPlayerSummary(ctx, steamID)
	if err != nil {
		writeError(c, err)
		return
	}

	record, err := h.authData.Save(ctx, &models.AuthData{
		UserIP:   c.ClientIP(),
		SteamID:  steamID,
		Username: player.PersonaName,
		DomainID: domainID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	entry := log.WithFields(log.Fields{"steam_id": steamID, "domain_id": domainID})
	entry.Info("steam login recorded")

	if h.cfg.SyncInventoryOnLogin {
		if _, err := h.inventory.Refresh(ctx, steamID); err != nil {
			writeError(c, err)
			return
		}
	}

	event := panel.AuthEvent{
		SteamID:    record.SteamID,
		Username:   record.Username,
		UserIP:     record.UserIP,
		DomainID:   record.DomainID,
		Avatar:     player.AvatarFull,
		ProfileURL: player.ProfileURL,
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
	}
	h.events.Publish(event)

	if err := h.panel.Notify(ctx, event); err != nil {
		entry.WithError(err).Warn("main panel notification failed")
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// ListAuthRecords returns one page of auth records narrowed by the optional
// domain_id, username, steam_id and user_ip query parameters.
func (h *APIHandler) ListAuthRecords(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rows, err := h.authData.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// ExportAuthRecords streams the filtered records as an xlsx workbook.
func (h *APIHandler) ExportAuthRecords(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	w, err := export.NewAuthDataWriter()
	if err != nil {
		writeError(c, err)
		return
	}
	defer w.Close()

	err = h.authData.Each(c.Request.Context(), filter, func(row models.AuthData) error {
		if w.Rows() >= maxExportRows {
			return errExportTooLarge
		}
		return w.Add(row)
	})
	if errors.Is(err, errExportTooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("export is limited to %d rows, narrow the filter", maxExportRows)})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="auth_data.xlsx"`)
	c.Header("Content-Type", export.ContentType)
	c.Status(http.StatusOK)
	if _, err := w.WriteTo(c.Writer); err != nil {
		log.WithError(err).Error("write auth export failed")
	}
}

// AuthEvents upgrades to a websocket that receives every recorded login.
func (h *APIHandler) AuthEvents(c *gin.Context) {
	h.events.ServeWS(c.Writer, c.Request)
}

var errExportTooLarge = errors.New("export row limit reached")

func returnToQuery(params url.Values) url.Values {
	u, err := url.Parse(params.Get("openid.return_to"))
	if err != nil {
		return url.Values{}
	}
	return u.Query()
}

func parseFilter(c *gin.Context) (authdata.Filter, error) {
	var f authdata.Filter

	if raw, ok := c.GetQuery("domain_id"); ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return f, fmt.Errorf("domain_id must be an integer")
		}
		f.DomainID = &n
	}
	if v, ok := c.GetQuery("username"); ok {
		f.Username = &v
	}
	if v, ok := c.GetQuery("steam_id"); ok {
		f.SteamID = &v
	}
	if v, ok := c.GetQuery("user_ip"); ok {
		f.UserIP = &v
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(authdata.DefaultLimit)))
	if err != nil || limit < 1 {
		return f, fmt.Errorf("limit must be a positive integer")
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		return f, fmt.Errorf("offset must be a non-negative integer")
	}
	f.Limit = limit
	f.Offset = offset
	return f, nil
}
