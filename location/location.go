// Package location resolves the device's approximate coordinates.
package location

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agriaid/config"
)

// Reason classifies why a location request failed.
type Reason int

const (
	Unknown Reason = iota
	Unsupported
	PermissionDenied
	Unavailable
	Timeout
)

func (r Reason) String() string {
	switch r {
	case Unsupported:
		return "unsupported"
	case PermissionDenied:
		return "permission_denied"
	case Unavailable:
		return "unavailable"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

var messages = map[Reason]string{
	Unsupported:      "Geolocation is not supported on this device.",
	PermissionDenied: "You denied the request for Geolocation.",
	Unavailable:      "Location information is unavailable.",
	Timeout:          "The request to get user location timed out.",
	Unknown:          "An unknown error occurred.",
}

// Error is a failed location request. Error() is the message shown to users.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string { return messages[e.Reason] }
func (e *Error) Unwrap() error { return e.Err }

func fail(r Reason, err error) *Error { return &Error{Reason: r, Err: err} }

// Coordinates is a resolved position. Accuracy is in meters; zero when the
// source does not report it.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	City      string  `json:"city,omitempty"`
	Country   string  `json:"country,omitempty"`
	Source    string  `json:"source"`
}

// Locator is one source of coordinates.
type Locator interface {
	Locate(ctx context.Context) (Coordinates, error)
}

// DefaultTimeout bounds a lookup when the service has none configured.
const DefaultTimeout = 10 * time.Second

// Service is the one-shot location capability.
type Service struct {
	Locator Locator
	Timeout time.Duration
}

func NewService(l Locator, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{Locator: l, Timeout: timeout}
}

// GetCurrentLocation runs a single lookup. Every failure is an *Error.
func (s *Service) GetCurrentLocation(ctx context.Context) (Coordinates, error) {
	if s == nil || s.Locator == nil {
		return Coordinates{}, fail(Unsupported, nil)
	}
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	c, err := s.Locator.Locate(ctx)
	if err == nil {
		return c, nil
	}
	var le *Error
	if errors.As(err, &le) {
		return Coordinates{}, le
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Coordinates{}, fail(Timeout, err)
	}
	return Coordinates{}, fail(Unknown, err)
}

// FromConfig picks the locator named by LOCATION_PROVIDER.
func FromConfig(cfg config.LocationConfig) (*Service, error) {
	switch cfg.Provider {
	case "ipapi", "":
		return NewService(NewIPAPI(cfg.URL), 0), nil
	case "static":
		return NewService(Static{Lat: cfg.Lat, Lon: cfg.Lon}, 0), nil
	case "none":
		return NewService(nil, 0), nil
	default:
		return nil, fmt.Errorf("unsupported location provider %q", cfg.Provider)
	}
}

// Static reports fixed coordinates, for fields without network access.
type Static struct {
	Lat float64
	Lon float64
}

func (s Static) Locate(ctx context.Context) (Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return Coordinates{}, err
	}
	return Coordinates{Latitude: s.Lat, Longitude: s.Lon, Source: "static"}, nil
}
