package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const defaultIPAPIURL = "http://ip-api.com/json/"

// ipAPIAccuracy is the nominal radius of a city-level IP fix, in meters.
const ipAPIAccuracy = 5000

// IPAPI geolocates the public IP of this process through ip-api.com or a
// compatible endpoint.
type IPAPI struct {
	url    string
	client *http.Client
}

func NewIPAPI(url string) *IPAPI {
	if url == "" {
		url = defaultIPAPIURL
	}
	return &IPAPI{url: url, client: &http.Client{Timeout: 30 * time.Second}}
}

type ipAPIResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	City    string  `json:"city"`
	Country string  `json:"country"`
}

func (p *IPAPI) Locate(ctx context.Context) (Coordinates, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return Coordinates{}, fail(Unknown, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return Coordinates{}, classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Coordinates{}, classifyTransport(ctx, err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Coordinates{}, fail(PermissionDenied, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Coordinates{}, fail(Unavailable, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return Coordinates{}, fail(Unknown, fmt.Errorf("status %d", resp.StatusCode))
	}

	var r ipAPIResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return Coordinates{}, fail(Unknown, fmt.Errorf("decode response: %w", err))
	}
	if r.Status != "" && r.Status != "success" {
		return Coordinates{}, fail(Unavailable, errors.New(r.Message))
	}
	return Coordinates{
		Latitude:  r.Lat,
		Longitude: r.Lon,
		Accuracy:  ipAPIAccuracy,
		City:      r.City,
		Country:   r.Country,
		Source:    "ipapi",
	}, nil
}

func classifyTransport(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fail(Timeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fail(Timeout, err)
	}
	return fail(Unavailable, err)
}
