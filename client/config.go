// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package client

import (
	"net/http"
	"time"
)

// Config configures an HTTPClient.
type Config struct {
	// BaseURL is the server root, e.g. https://licenses.example.com.
	BaseURL string
	// Timeout bounds every request.
	Timeout time.Duration
	// HTTPClient replaces the default transport, mostly in tests.
	HTTPClient *http.Client
	UserAgent  string
}

func NewDefaultConfig() Config {
	return Config{
		BaseURL:   "http://127.0.0.1:8080",
		Timeout:   15 * time.Second,
		UserAgent: "gatekeeper-client",
	}
}
