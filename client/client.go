package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"asset_inventory_tool/events"
	"asset_inventory_tool/models"
)

// ErrUnavailable marks transport-level failures (timeout, refused connection,
// 5xx). Callers treat these as retryable, never as data errors.
var ErrUnavailable = errors.New("inventory backend unavailable")

// Client talks to inventoryd over the RPC boundary and tracks connectivity.
// The probe loop is the Go stand-in for the browser's online/offline events:
// transitions are published on the bus, and Online gates the sync/poll loops.
type Client struct {
	base          string
	http          *http.Client
	bus           *events.Bus
	probeInterval time.Duration

	online atomic.Bool
	stop   chan struct{}
	once   sync.Once
}

func New(baseURL string, timeout, probeInterval time.Duration, bus *events.Bus) *Client {
	return &Client{
		base:          baseURL,
		http:          &http.Client{Timeout: timeout},
		bus:           bus,
		probeInterval: probeInterval,
		stop:          make(chan struct{}),
	}
}

// Online reports the last known connectivity state. Starts pessimistic until
// the first successful probe.
func (c *Client) Online() bool { return c.online.Load() }

// StartProbe runs the connectivity loop until Stop. The first probe fires
// immediately so startup is not blind for a full interval.
func (c *Client) StartProbe() {
	go func() {
		c.probe()
		ticker := time.NewTicker(c.probeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				c.probe()
			}
		}
	}()
}

func (c *Client) Stop() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Client) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/healthz", nil)
	if err != nil {
		return
	}
	resp, err := c.http.Do(req)
	up := err == nil && resp.StatusCode < 500
	if resp != nil {
		resp.Body.Close()
	}
	was := c.online.Swap(up)
	if was == up {
		return
	}
	if up {
		log.Printf("client: backend reachable")
		c.bus.Publish(events.Online, nil)
	} else {
		log.Printf("client: backend unreachable")
		c.bus.Publish(events.Offline, nil)
	}
}

// SaveBatch uploads one batch and returns the uids the backend effectively
// persisted. Any submitted uid missing from the result failed.
func (c *Client) SaveBatch(ctx context.Context, items []models.SaveBatchItem) ([]string, error) {
	var out models.SaveBatchResponse
	if err := c.postJSON(ctx, "/rpc/saveBatch", models.SaveBatchRequest{Items: items}, &out); err != nil {
		return nil, err
	}
	return out.Saved, nil
}

// GetInventorySummary fetches the cross-station recorded-assets view.
// location scopes the progress metadata; the found-assets groups always cover
// every location so conflict detection stays global.
func (c *Client) GetInventorySummary(ctx context.Context, location string) (*models.InventorySummary, error) {
	path := "/rpc/inventorySummary"
	if location != "" {
		path += "?location=" + url.QueryEscape(location)
	}
	var out models.InventorySummary
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetAppSettings(ctx context.Context) (*models.AppSettings, error) {
	var out models.AppSettings
	if err := c.getJSON(ctx, "/rpc/appSettings", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetInventoryData(ctx context.Context) (*models.InventoryData, error) {
	var out models.InventoryData
	if err := c.getJSON(ctx, "/rpc/inventoryData", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: %s returned %d", ErrUnavailable, req.URL.Path, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s returned %d", req.URL.Path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
