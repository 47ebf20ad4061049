package locations

import (
	"context"
	"errors"
	"fmt"

	"googlemaps.github.io/maps"
)

// GeocodeResult is the subset of a geocoder answer stored on a location.
type GeocodeResult struct {
	Latitude         float64
	Longitude        float64
	PlaceID          string
	FormattedAddress string
}

// Geocoder resolves a postal address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (GeocodeResult, error)
}

// ErrNoGeocodeResult is returned when the geocoder found nothing for the address.
var ErrNoGeocodeResult = errors.New("locations: no geocode result")

// GoogleGeocoder geocodes through the Google Maps Geocoding API.
type GoogleGeocoder struct {
	client *maps.Client
}

// NewGoogleGeocoder builds a geocoder. Extra options (e.g. maps.WithBaseURL) are passed to the client.
func NewGoogleGeocoder(apiKey string, opts ...maps.ClientOption) (*GoogleGeocoder, error) {
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("locations: maps client: %w", err)
	}
	return &GoogleGeocoder{client: client}, nil
}

// Geocode returns the first match for address.
func (g *GoogleGeocoder) Geocode(ctx context.Context, address string) (GeocodeResult, error) {
	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: address})
	if err != nil {
		return GeocodeResult{}, fmt.Errorf("locations: geocode: %w", err)
	}
	if len(results) == 0 {
		return GeocodeResult{}, ErrNoGeocodeResult
	}
	top := results[0]
	return GeocodeResult{
		Latitude:         top.Geometry.Location.Lat,
		Longitude:        top.Geometry.Location.Lng,
		PlaceID:          top.PlaceID,
		FormattedAddress: top.FormattedAddress,
	}, nil
}
