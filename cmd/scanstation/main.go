package main

import (
	"log"

	"asset_inventory_tool/agent"
	"asset_inventory_tool/config"
)

func main() {
	config.LoadEnv()

	a := agent.MustNew(config.LoadAgent())
	defer a.Close()
	a.Start()

	log.Printf("scanstation listening on :%s", a.Config.Port)
	_ = a.Router.Run(":" + a.Config.Port)
}
