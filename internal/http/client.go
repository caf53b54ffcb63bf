// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package http provides the JSON API client shared by the location and geocoding providers.
package http

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"reflect"
	"runtime"
	"time"

	"github.com/wneessen/mylocation/internal/logger"
)

// DefaultTimeout bounds every request that does not bring its own timeout.
const DefaultTimeout = time.Second * 10

var (
	// version is set at build time
	version = "dev"

	// UserAgent identifies mylocation to the public geolocation and geocoding APIs. Nominatim
	// and BeaconDB block anonymous clients.
	UserAgent = fmt.Sprintf("mylocation/%s (%s/%s; +https://github.com/wneessen/mylocation/)",
		version, runtime.GOOS, runtime.GOARCH)

	ErrNonPointerTarget = errors.New("target must be a non-nil pointer")
	ErrNilResponse      = errors.New("nil response received")
)

// Client wraps the stdlib http.Client for JSON APIs.
type Client struct {
	*http.Client
	logger *logger.Logger
}

// New returns a Client that requires TLS 1.2 or later.
func New(log *logger.Logger) *Client {
	transport := &http.Transport{TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12}}
	return &Client{
		Client: &http.Client{Timeout: DefaultTimeout, Transport: transport},
		logger: log,
	}
}

// GetWithTimeout queries endpoint with the given parameters and decodes the JSON response
// into target. It returns the HTTP status code of the response.
func (h *Client) GetWithTimeout(ctx context.Context, endpoint string, target any, query url.Values,
	headers map[string]string, timeout time.Duration,
) (int, error) {
	reqURL, err := url.Parse(endpoint)
	if err != nil {
		return 0, fmt.Errorf("failed to parse URL: %w", err)
	}
	if len(query) > 0 {
		reqURL.RawQuery = query.Encode()
	}
	return h.requestJSON(ctx, http.MethodGet, reqURL.String(), nil, target, headers, timeout)
}

// PostWithTimeout sends body to endpoint and decodes the JSON response into target. It
// returns the HTTP status code of the response.
func (h *Client) PostWithTimeout(ctx context.Context, endpoint string, target any, body io.Reader,
	headers map[string]string, timeout time.Duration,
) (int, error) {
	return h.requestJSON(ctx, http.MethodPost, endpoint, body, target, headers, timeout)
}

func (h *Client) requestJSON(ctx context.Context, method, endpoint string, body io.Reader, target any,
	headers map[string]string, timeout time.Duration,
) (int, error) {
	if rv := reflect.ValueOf(target); rv.Kind() != reflect.Pointer || rv.IsNil() {
		return 0, ErrNonPointerTarget
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	request.Header.Set("User-Agent", UserAgent)
	request.Header.Set("Accept", "application/json")
	for key, value := range headers {
		request.Header.Set(key, value)
	}

	response, err := h.Do(request)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return 0, err
	case err != nil:
		return 0, fmt.Errorf("failed to perform %s request: %w", method, err)
	case response == nil:
		return 0, ErrNilResponse
	}
	defer func() {
		if closeErr := response.Body.Close(); closeErr != nil {
			h.logger.Error("failed to close HTTP response body", logger.Err(closeErr),
				slog.String("endpoint", endpoint))
		}
	}()

	if err = json.NewDecoder(response.Body).Decode(target); err != nil {
		return response.StatusCode, fmt.Errorf("failed to decode JSON response: %w", err)
	}
	return response.StatusCode, nil
}
