// Package api talks to the authoritative remote store: a keyed HTTP
// read/write service for territory records and pixel canvases, plus a
// websocket feed pushing change events.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"terrasync/typedef"
)

// Client is the HTTP client for the remote store. It satisfies
// storage.RemoteCanvasStore.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	gridWidth  int
	gridHeight int
}

// NewClient creates a remote store client. gridWidth/gridHeight size
// canvases whose records carry no explicit dimensions.
func NewClient(baseURL string, gridWidth, gridHeight int, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
		gridWidth:  gridWidth,
		gridHeight: gridHeight,
	}
}

// SetHTTPClient overrides the underlying HTTP client, used by tests.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// GetTerritory fetches one territory record. A 404 reports (nil, false, nil).
func (c *Client) GetTerritory(ctx context.Context, territoryID string) (*typedef.Territory, bool, error) {
	var tj TerritoryJSON
	ok, err := c.getJSON(ctx, "/territories/"+url.PathEscape(territoryID), &tj)
	if err != nil || !ok {
		return nil, false, err
	}
	return tj.ToTerritory(), true, nil
}

// PutTerritory stores one territory record.
func (c *Client) PutTerritory(ctx context.Context, t *typedef.Territory) error {
	return c.putJSON(ctx, "/territories/"+url.PathEscape(t.ID), FromTerritory(t))
}

// GetCanvas fetches one pixel canvas. A 404 reports (nil, false, nil).
func (c *Client) GetCanvas(ctx context.Context, territoryID string) (*typedef.PixelCanvas, bool, error) {
	var cj CanvasJSON
	ok, err := c.getJSON(ctx, "/canvases/"+url.PathEscape(territoryID), &cj)
	if err != nil || !ok {
		return nil, false, err
	}
	canvas := cj.ToCanvas(c.gridWidth, c.gridHeight)
	if err := canvas.Validate(); err != nil {
		return nil, false, fmt.Errorf("remote canvas %s is invalid: %w", territoryID, err)
	}
	return canvas, true, nil
}

// PutCanvas stores one pixel canvas.
func (c *Client) PutCanvas(ctx context.Context, canvas *typedef.PixelCanvas) error {
	return c.putJSON(ctx, "/canvases/"+url.PathEscape(canvas.TerritoryID), FromCanvas(canvas))
}

// OwnedTerritories lists territory records matching an ownership predicate.
// An empty ownerRef lists every owned territory.
func (c *Client) OwnedTerritories(ctx context.Context, ownerRef string) ([]*typedef.Territory, error) {
	path := "/territories?owned=true"
	if ownerRef != "" {
		path = "/territories?owner=" + url.QueryEscape(ownerRef)
	}
	var records []TerritoryJSON
	ok, err := c.getJSON(ctx, path, &records)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	out := make([]*typedef.Territory, 0, len(records))
	for _, tj := range records {
		out = append(out, tj.ToTerritory())
	}
	return out, nil
}

// PaintedTerritoryIDs lists the ids of every canvas with non-empty content.
func (c *Client) PaintedTerritoryIDs(ctx context.Context) ([]string, error) {
	var ids []string
	ok, err := c.getJSON(ctx, "/canvases?painted=true", &ids)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return ids, nil
}

// getJSON performs a GET and decodes the body. A 404 reports (false, nil).
func (c *Client) getJSON(ctx context.Context, path string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return false, nil
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, resp.Body)
		return false, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return true, nil
}

func (c *Client) putJSON(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", path, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}
	return nil
}
