package main

import (
	"log"

	"asset_inventory_tool/app"
	"asset_inventory_tool/config"
	"asset_inventory_tool/routes"
)

func main() {
	config.LoadEnv()

	application := app.MustNew()
	defer application.Close()

	r := application.Router

	// Health (also the reachability probe target for the scan stations)
	r.GET("/healthz", func(c *app.Ctx) { c.JSON(200, app.H{"ok": true}) })

	routes.RegisterRoutes(r, application)

	port := application.Config.Port
	log.Printf("inventoryd listening on :%s", port)
	_ = r.Run(":" + port)
}
