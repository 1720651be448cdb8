// Package httpclient owns the outbound HTTP client shared by the LLM client
// and the agent tools for the lifetime of the process.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

type Client struct {
	*http.Client
}

// New returns a pooled client without an overall timeout. Streaming LLM
// responses can legitimately run for minutes; callers bound requests with
// their context instead.
func New() *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &Client{Client: &http.Client{Transport: transport}}
}

// Close releases pooled connections.
func (c *Client) Close() {
	c.CloseIdleConnections()
}
