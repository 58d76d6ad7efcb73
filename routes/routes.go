package routes

import (
	"github.com/gin-gonic/gin"

	"asset_inventory_tool/app"
	"asset_inventory_tool/controllers"
)

func RegisterRoutes(r *gin.Engine, a *app.App) {
	ic := controllers.NewInventoryController(a)

	rpc := r.Group("/rpc")
	rpc.POST("/saveBatch", ic.SaveBatch)
	rpc.GET("/inventorySummary", ic.InventorySummary)
	rpc.GET("/appSettings", ic.AppSettings)
	rpc.GET("/inventoryData", ic.InventoryData)

	admin := r.Group("/admin")
	admin.PUT("/baseline", ic.ReplaceBaseline)
}
