package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/example/carpool-matching/internal/models"
)

// HTTPBackend queries a Nominatim-compatible geocoding endpoint.
type HTTPBackend struct {
	Endpoint string
	Client   *http.Client
}

func NewHTTPBackend(endpoint string) *HTTPBackend {
	return &HTTPBackend{Endpoint: endpoint, Client: &http.Client{Timeout: 2 * time.Second}}
}

func (b *HTTPBackend) Lookup(ctx context.Context, name string) (models.Coord, error) {
	u := fmt.Sprintf("%s/search?q=%s&format=json&limit=1", b.Endpoint, url.QueryEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return models.Coord{}, err
	}
	resp, err := b.Client.Do(req)
	if err != nil {
		return models.Coord{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.Coord{}, fmt.Errorf("geocoder status %d", resp.StatusCode)
	}
	var out []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.Coord{}, err
	}
	if len(out) == 0 {
		return models.Coord{}, ErrNotFound
	}
	lat, err := strconv.ParseFloat(out[0].Lat, 64)
	if err != nil {
		return models.Coord{}, err
	}
	lon, err := strconv.ParseFloat(out[0].Lon, 64)
	if err != nil {
		return models.Coord{}, err
	}
	return models.Coord{Lat: lat, Lon: lon}, nil
}
