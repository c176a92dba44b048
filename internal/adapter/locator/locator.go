// Package locator supplies the observer position and the emergency
// facility directory used by the emergency notice flow.
package locator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"medichat/internal/domain"
	"medichat/internal/infra/config"
	"medichat/internal/infra/tracer"
)

// StaticGeoProvider reports a fixed position from configuration. It stands
// in for a live positioning source on hosts that have none; when the config
// carries no position it reports denial, which the emergency flow treats as
// non-fatal.
type StaticGeoProvider struct {
	pos domain.Coordinate
	ok  bool
}

var _ domain.GeoProvider = (*StaticGeoProvider)(nil)

// NewStaticGeoProvider builds a provider from the emergency config.
func NewStaticGeoProvider(cfg config.EmergencyConfig) *StaticGeoProvider {
	return &StaticGeoProvider{
		pos: domain.Coordinate{Latitude: cfg.Latitude, Longitude: cfg.Longitude},
		ok:  cfg.HasPosition,
	}
}

// Locate implements domain.GeoProvider.
func (p *StaticGeoProvider) Locate(_ context.Context) (domain.Coordinate, error) {
	if !p.ok {
		return domain.Coordinate{}, domain.NewDomainError("locator.Locate", domain.ErrGeoDenied, "no position configured")
	}
	return p.pos, nil
}

// HTTPDirectory queries a facility service for hospitals near a point.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

var _ domain.FacilityDirectory = (*HTTPDirectory)(nil)

// NewHTTPDirectory creates a directory client for the given base URL.
func NewHTTPDirectory(baseURL string, logger *slog.Logger) *HTTPDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPDirectory{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

type hospitalsResponse struct {
	Hospitals []wireFacility `json:"hospitals"`
}

type wireFacility struct {
	Name       string   `json:"name"`
	Address    string   `json:"address,omitempty"`
	Phone      string   `json:"phone,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	DistanceKm float64  `json:"distance_km,omitempty"`
}

// Nearby implements domain.FacilityDirectory.
func (d *HTTPDirectory) Nearby(ctx context.Context, at domain.Coordinate) ([]domain.Facility, error) {
	ctx, span := tracer.StartSpan(ctx, "locator.nearby",
		trace.WithAttributes(tracer.StringAttr("directory", d.baseURL)),
	)
	defer span.End()

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(at.Latitude, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(at.Longitude, 'f', -1, 64))
	endpoint := d.baseURL + "/hospitals?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := domain.NewDomainError("locator.Nearby", domain.ErrUnavailable,
			fmt.Sprintf("API error %d", resp.StatusCode))
		tracer.RecordError(span, err)
		return nil, err
	}

	var body hospitalsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("unmarshal hospitals: %w", err)
	}

	facilities := make([]domain.Facility, 0, len(body.Hospitals))
	for _, h := range body.Hospitals {
		facilities = append(facilities, domain.Facility{
			Name:       h.Name,
			Address:    h.Address,
			Phone:      h.Phone,
			Latitude:   h.Latitude,
			Longitude:  h.Longitude,
			DistanceKm: h.DistanceKm,
		})
	}

	span.SetAttributes(tracer.IntAttr("facilities", len(facilities)))
	tracer.SetOK(span)
	return facilities, nil
}
