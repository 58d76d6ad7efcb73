package agent

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.etcd.io/bbolt"

	"asset_inventory_tool/baseline"
	"asset_inventory_tool/client"
	"asset_inventory_tool/config"
	"asset_inventory_tool/events"
	"asset_inventory_tool/registry"
	"asset_inventory_tool/scan"
	"asset_inventory_tool/store"
	"asset_inventory_tool/syncer"
)

// App aggregates the scan-station dependencies.
type App struct {
	Router   *gin.Engine
	DB       *bbolt.DB
	Bus      *events.Bus
	Store    *store.Store
	Baseline *baseline.Validator
	Registry *registry.Cache
	Pipeline *scan.Pipeline
	Syncer   *syncer.Manager
	Client   *client.Client
	Config   config.AgentConfig

	stream *stream

	locMu    sync.Mutex
	location string

	inventoryOpen atomic.Bool
}

func MustNew(cfg config.AgentConfig) *App {
	db, err := store.OpenDB(cfg.DataPath)
	if err != nil {
		log.Fatalf("open local storage: %v", err)
	}

	bus := events.New()

	st, err := store.New(db, bus, cfg.FlushDebounce)
	if err != nil {
		log.Fatalf("load local queue: %v", err)
	}

	cl := client.New(cfg.BackendURL, cfg.RPCTimeout, cfg.ProbeInterval, bus)

	reg, err := registry.New(cl, db, bus, registry.Options{
		InitialDelay: cfg.PollInitialDelay,
		PollInterval: cfg.PollInterval,
		TTL:          cfg.RegistryTTL,
		FetchTimeout: cfg.RPCTimeout,
	})
	if err != nil {
		log.Fatalf("load registry cache: %v", err)
	}

	bl := baseline.New()

	a := &App{
		Router:   gin.Default(),
		DB:       db,
		Bus:      bus,
		Store:    st,
		Baseline: bl,
		Registry: reg,
		Pipeline: scan.New(st, bl, reg),
		Client:   cl,
		Config:   cfg,
		stream:   newStream(bus),
	}
	a.Syncer = syncer.New(st, cl, bus, syncer.Options{
		Interval:   cfg.SyncInterval,
		BatchSize:  cfg.SyncBatchSize,
		MaxRetries: cfg.MaxRetries,
		RPCTimeout: cfg.RPCTimeout,
	})
	a.inventoryOpen.Store(true)

	useCORS(a.Router, cfg.WebOrigin)
	a.registerRoutes()
	return a
}

// Start spins up the probe, poll and sync loops and bootstraps the session
// data (settings + baseline) as soon as the backend is reachable.
func (a *App) Start() {
	a.Client.StartProbe()
	a.Registry.Start()
	a.Syncer.Start()
	go a.bootstrap()
}

func (a *App) Close() {
	a.Syncer.Halt()
	a.Registry.Stop()
	a.Client.Stop()
	a.Store.Close()
	_ = a.DB.Close()
}

// Location returns the currently selected station location.
func (a *App) Location() string {
	a.locMu.Lock()
	defer a.locMu.Unlock()
	return a.location
}

// SetLocation switches the station location, which restarts connectivity-
// dependent loops and refreshes the registry out of cycle.
func (a *App) SetLocation(loc string) {
	a.locMu.Lock()
	changed := a.location != loc
	a.location = loc
	a.locMu.Unlock()
	if !changed {
		return
	}
	a.Registry.SetLocation(loc)
	a.Bus.Publish(events.LocationChanged, loc)
}

// bootstrap loads app settings and the inventory baseline once per session,
// retrying until the backend answers. The settings feed the retention gate
// and the inventory-open kill switch.
func (a *App) bootstrap() {
	for {
		if a.Client.Online() {
			if a.loadSession() {
				return
			}
		}
		time.Sleep(a.Config.ProbeInterval)
	}
}

func (a *App) loadSession() bool {
	ctx, cancel := context.WithTimeout(context.Background(), a.Config.RPCTimeout)
	defer cancel()

	settings, err := a.Client.GetAppSettings(ctx)
	if err != nil {
		log.Printf("agent: fetch app settings: %v", err)
		return false
	}
	a.inventoryOpen.Store(settings.InventoryOpen)
	var minCreated time.Time
	if settings.MinValidDate != "" {
		if t, err := time.Parse(time.RFC3339, settings.MinValidDate); err == nil {
			minCreated = t
		} else {
			log.Printf("agent: bad minValidDate %q: %v", settings.MinValidDate, err)
		}
	}
	a.Store.ApplyRetentionPolicy(minCreated, settings.AppVersion)

	data, err := a.Client.GetInventoryData(ctx)
	if err != nil {
		log.Printf("agent: fetch inventory baseline: %v", err)
		return false
	}
	a.Baseline.Load(data)
	log.Printf("agent: session ready (%d baseline locations, inventory open: %v)",
		len(data.Inventory), settings.InventoryOpen)
	return true
}
