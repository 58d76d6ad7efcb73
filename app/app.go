package app

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"asset_inventory_tool/cache"
	"asset_inventory_tool/config"
	"asset_inventory_tool/db"
)

// 简化别名，便于 handlers 调用
type Ctx = gin.Context
type H = gin.H

// App 聚合 inventoryd 的各依赖
type App struct {
	Router  *gin.Engine
	DB      *gorm.DB
	RDB     *redis.Client
	Repo    *db.Repo
	Summary *cache.SummaryCache
	Config  config.BackendConfig
}

func MustNew() *App {
	cfg := config.LoadBackend()

	dbConn := db.ConnectDB()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPwd, DB: 0})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis: %v", err)
	}

	r := gin.Default()
	useCORS(r, cfg.WebOrigin)

	return &App{
		Router:  r,
		DB:      dbConn,
		RDB:     rdb,
		Repo:    db.NewRepo(dbConn),
		Summary: cache.NewSummaryCache(rdb, cfg.SummaryTTL),
		Config:  cfg,
	}
}

func (a *App) Close() { _ = a.RDB.Close() }
