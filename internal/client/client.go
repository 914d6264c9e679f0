// Package client talks to a running hexmapd over its HTTP API.
// It reads map state for tools like hexdump and submits brush strokes with
// admin auth.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/talgya/hexterrain/internal/editor"
)

// Status mirrors GET /api/v1/status.
type Status struct {
	Name          string `json:"name"`
	Tick          uint64 `json:"tick"`
	Running       bool   `json:"running"`
	Started       string `json:"started"`
	Cells         int    `json:"cells"`
	Chunks        int    `json:"chunks"`
	DirtyChunks   int    `json:"dirty_chunks"`
	Strokes       int    `json:"strokes"`
	Rejected      int    `json:"rejected"`
	Rebuilds      uint64 `json:"rebuilds"`
	CellsChanged  string `json:"cells_changed"`
	MeshBuilds    string `json:"mesh_builds"`
	StreamClients int32  `json:"stream_clients"`
}

// Cell mirrors one entry of the map's cell list.
type Cell struct {
	X            int      `json:"x"`
	Z            int      `json:"z"`
	Col          int      `json:"col"`
	Row          int      `json:"row"`
	Elevation    int      `json:"elevation"`
	WaterLevel   int      `json:"water_level"`
	Color        string   `json:"color"`
	UrbanLevel   int      `json:"urban,omitempty"`
	FarmLevel    int      `json:"farm,omitempty"`
	PlantLevel   int      `json:"plant,omitempty"`
	SpecialIndex int      `json:"special,omitempty"`
	Walled       bool     `json:"walled,omitempty"`
	RiverIn      string   `json:"river_in,omitempty"`
	RiverOut     string   `json:"river_out,omitempty"`
	Roads        []string `json:"roads,omitempty"`
}

// Underwater reports whether standing water covers the cell.
func (c Cell) Underwater() bool { return c.WaterLevel > c.Elevation }

// Map mirrors GET /api/v1/map.
type Map struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	ChunkSizeX int    `json:"chunk_size_x"`
	ChunkSizeZ int    `json:"chunk_size_z"`
	Cells      []Cell `json:"cells"`
}

// StrokeResponse is the reply to POST /api/v1/stroke.
type StrokeResponse struct {
	ID     string        `json:"id"`
	Result editor.Result `json:"result"`
}

// Client calls the hexmapd API.
type Client struct {
	BaseURL    string
	AdminKey   string
	HTTPClient *http.Client
}

// New creates a client for the given base URL. The admin key is only needed
// for PostStroke.
func New(baseURL, adminKey string) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		AdminKey: adminKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FromEnv builds a client from HEXMAP_API_URL and HEXMAP_ADMIN_KEY.
func FromEnv() *Client {
	return New(envOrDefault("HEXMAP_API_URL", "http://localhost:8080"), os.Getenv("HEXMAP_ADMIN_KEY"))
}

// Status fetches server counters.
func (c *Client) Status() (*Status, error) {
	var st Status
	if err := c.getJSON("/api/v1/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// FetchMap fetches every cell.
func (c *Client) FetchMap() (*Map, error) {
	var m Map
	if err := c.getJSON("/api/v1/map", &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// PostStroke submits one stroke to POST /api/v1/stroke.
func (c *Client) PostStroke(s editor.Stroke) (*StrokeResponse, error) {
	body, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal stroke: %w", err)
	}

	req, err := http.NewRequest("POST", c.BaseURL+"/api/v1/stroke", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.AdminKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST stroke: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stroke: status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var out StrokeResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("parse stroke response: %w", err)
	}
	return &out, nil
}

// WaitReady polls /api/v1/status until the server answers or attempts run out.
func (c *Client) WaitReady(attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if _, err = c.Status(); err == nil {
			return nil
		}
		time.Sleep(delay)
	}
	return fmt.Errorf("server not ready after %d attempts: %w", attempts, err)
}

func (c *Client) getJSON(path string, v any) error {
	resp, err := c.HTTPClient.Get(c.BaseURL + path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
