package agent

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"asset_inventory_tool/scan"
	"asset_inventory_tool/store"
)

func (a *App) registerRoutes() {
	r := a.Router

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	api := r.Group("/api")
	api.POST("/scan", a.handleScan)
	api.GET("/items", a.handleListItems)
	api.PATCH("/items/:uid", a.handleUpdateItem)
	api.GET("/stats", a.handleStats)
	api.POST("/retry", a.handleRetryAll)
	api.POST("/location", a.handleSetLocation)
	api.GET("/locations", a.handleLocations)
	api.GET("/summary", a.handleSummary)
	api.GET("/status", a.handleStatus)
	api.GET("/events", a.handleEvents)
}

func (a *App) handleScan(c *gin.Context) {
	if !a.inventoryOpen.Load() {
		c.JSON(http.StatusForbidden, gin.H{"error": "inventory round is closed"})
		return
	}
	var req scan.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Location == "" {
		req.Location = a.Location()
	}
	c.JSON(http.StatusOK, a.Pipeline.Accept(req))
}

func (a *App) handleListItems(c *gin.Context) {
	items := a.Store.ItemsForLocation(c.Query("location"))
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (a *App) handleUpdateItem(c *gin.Context) {
	uid := c.Param("uid")
	var in struct {
		State      int    `json:"state"`
		UsefulLife int    `json:"usefulLife"`
		Notes      string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := a.Store.Update(uid, in.State, in.UsefulLife, in.Notes)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown record"})
	case errors.Is(err, store.ErrOutOfRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": "field value out of range"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		a.Syncer.EnsureRunning()
		rec, _ := a.Store.GetByUID(uid)
		c.JSON(http.StatusOK, rec)
	}
}

func (a *App) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, a.Store.Stats())
}

func (a *App) handleRetryAll(c *gin.Context) {
	changed := a.Store.RetryAllFailed()
	if changed {
		a.Syncer.EnsureRunning()
	}
	c.JSON(http.StatusOK, gin.H{"retried": changed})
}

func (a *App) handleSetLocation(c *gin.Context) {
	var in struct {
		Location string `json:"location" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a.SetLocation(in.Location)
	c.JSON(http.StatusOK, gin.H{"location": in.Location})
}

func (a *App) handleLocations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"locations": a.Baseline.Locations()})
}

func (a *App) handleSummary(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"locations": a.Registry.Summary()})
}

func (a *App) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"online":        a.Client.Online(),
		"syncing":       a.Syncer.Running(),
		"registryReady": a.Registry.Ready(),
		"baselineReady": a.Baseline.Ready(),
		"inventoryOpen": a.inventoryOpen.Load(),
		"location":      a.Location(),
		"stats":         a.Store.Stats(),
	})
}

// handleEvents streams core events to the UI as server-sent events.
func (a *App) handleEvents(c *gin.Context) {
	ch := a.stream.attach()
	defer a.stream.detach(ch)

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(msg.Topic), msg)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
