// Package network provides the shared HTTP client and a reachability probe for stream sources.
package network

import (
	"net/http"
	"time"
)

// Client is the HTTP client shared across the application.
var Client = &http.Client{
	Timeout:   15 * time.Second,
	Transport: newTransport(),
}

func newTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConnsPerHost = 8
	t.IdleConnTimeout = 30 * time.Second
	t.ResponseHeaderTimeout = 10 * time.Second
	return t
}
