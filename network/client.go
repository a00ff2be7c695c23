// Package network provides the shared HTTP client and the data-source abstractions media is read through.
package network

import (
	"net/http"
	"time"

	"github.com/xmedia/xmedia/log"
	"golang.org/x/net/http2"
)

// Client is the HTTP client shared by every upstream source. It carries no overall
// timeout: segment and manifest timeouts belong to the transport.
var Client = &http.Client{
	Transport: newTransport(),
}

func newTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 100
	t.MaxIdleConnsPerHost = 32
	t.IdleConnTimeout = 30 * time.Second
	t.ResponseHeaderTimeout = 30 * time.Second

	// health-check idle HTTP/2 connections so a stalled CDN link fails a segment instead of hanging it
	h2, err := http2.ConfigureTransports(t)
	if err != nil {
		log.Warnf("configure http2: %v", err)
		return t
	}
	h2.ReadIdleTimeout = 15 * time.Second
	h2.PingTimeout = 5 * time.Second

	return t
}
