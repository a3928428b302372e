package maps

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	minAddressLen = 3
	maxAddressLen = 200
)

// RouteSummary is the readable part of a route.
type RouteSummary struct {
	TravelTimeMinutes   int     `json:"estimated_travel_time_minutes"`
	DistanceKm          float64 `json:"distance_km"`
	TrafficDelayMinutes int     `json:"traffic_delay_minutes"`
}

// RoutePlan is the summarised route between two addresses.
type RoutePlan struct {
	Status       string       `json:"status"`
	StartAddress string       `json:"start_address"`
	EndAddress   string       `json:"end_address"`
	Summary      RouteSummary `json:"route_summary"`
	Message      string       `json:"message"`
}

// ValidateAddress checks an address before it is sent to the geocoder.
func ValidateAddress(field, address string) error {
	address = strings.TrimSpace(address)
	switch {
	case address == "":
		return &ValidationError{Field: field, Reason: "address must be a non-empty string"}
	case len(address) < minAddressLen:
		return &ValidationError{Field: field, Reason: fmt.Sprintf("address must be at least %d characters long", minAddressLen)}
	case len(address) > maxAddressLen:
		return &ValidationError{Field: field, Reason: fmt.Sprintf("address must be less than %d characters long", maxAddressLen)}
	}
	return nil
}

// PlanRoute validates both addresses, routes between them and summarises the
// result.
func (c *Client) PlanRoute(ctx context.Context, start, end string) (*RoutePlan, error) {
	if err := ValidateAddress("start address", start); err != nil {
		return nil, err
	}
	if err := ValidateAddress("end address", end); err != nil {
		return nil, err
	}

	from, err := c.Geocode(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("failed to geocode start address: %w", err)
	}
	to, err := c.Geocode(ctx, end)
	if err != nil {
		return nil, fmt.Errorf("failed to geocode end address: %w", err)
	}

	raw, err := c.Route(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate route: %w", err)
	}

	summary := gjson.GetBytes(raw, "routes.0.summary")
	if !summary.Exists() {
		return nil, fmt.Errorf("failed to calculate route: no routes found")
	}

	s := RouteSummary{
		TravelTimeMinutes:   int(math.Round(summary.Get("travelTimeInSeconds").Float() / 60)),
		DistanceKm:          math.Round(summary.Get("lengthInMeters").Float()/10) / 100,
		TrafficDelayMinutes: int(math.Round(summary.Get("trafficDelayInSeconds").Float() / 60)),
	}

	return &RoutePlan{
		Status:       "success",
		StartAddress: start,
		EndAddress:   end,
		Summary:      s,
		Message: fmt.Sprintf(
			"Successfully planned a route from %s to %s. Estimated travel time: %d minutes. Distance: %s km. Traffic delay: %d minutes.",
			start, end, s.TravelTimeMinutes, strconv.FormatFloat(s.DistanceKm, 'f', -1, 64), s.TrafficDelayMinutes,
		),
	}, nil
}
