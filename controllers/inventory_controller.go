package controllers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"asset_inventory_tool/app"
	"asset_inventory_tool/models"
)

type InventoryController struct{ *app.App }

func NewInventoryController(a *app.App) *InventoryController { return &InventoryController{App: a} }

// SaveBatch 持久化一批扫描记录，按 uid 幂等
func (ic *InventoryController) SaveBatch(c *gin.Context) {
	var in models.SaveBatchRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	saved, err := ic.Repo.SaveBatch(c.Request.Context(), in.Items)
	if err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	if len(saved) > 0 {
		if err := ic.Summary.Invalidate(c.Request.Context()); err != nil {
			log.Printf("summary cache invalidate: %v", err)
		}
	}
	c.JSON(http.StatusOK, models.SaveBatchResponse{Saved: saved})
}

func (ic *InventoryController) InventorySummary(c *gin.Context) {
	location := c.Query("location")
	if cached, ok := ic.Summary.Get(c.Request.Context(), location); ok {
		c.JSON(http.StatusOK, cached)
		return
	}
	sum, err := ic.Repo.Summary(c.Request.Context(), location)
	if err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	if err := ic.Summary.Set(c.Request.Context(), location, sum); err != nil {
		log.Printf("summary cache set: %v", err)
	}
	c.JSON(http.StatusOK, sum)
}

func (ic *InventoryController) AppSettings(c *gin.Context) {
	c.JSON(http.StatusOK, models.AppSettings{
		MinValidDate:  ic.Config.MinValidDate,
		AppVersion:    ic.Config.AppVersion,
		InventoryOpen: ic.Config.InventoryOpen,
	})
}

func (ic *InventoryController) InventoryData(c *gin.Context) {
	data, err := ic.Repo.InventoryData(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, data)
}

// ReplaceBaseline 管理端整体替换基准清单
func (ic *InventoryController) ReplaceBaseline(c *gin.Context) {
	var in struct {
		Inventory []models.BaselineGroup `json:"inventory" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	if err := ic.Repo.ReplaceBaseline(c.Request.Context(), in.Inventory); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	if err := ic.Summary.Invalidate(c.Request.Context()); err != nil {
		log.Printf("summary cache invalidate: %v", err)
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}
