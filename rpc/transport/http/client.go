package http

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/transport"
	"github.com/cockroachdb/errors"
)

func NewHttpClientTransport() transport.IRPCClientTransport {
	return &httpClientTransport{}
}

// httpClientTransport posts every request to <endpoint>/<shard id>.
// Endpoints are used round robin, a failed attempt moves on to the next endpoint.
type httpClientTransport struct {
	endpoints []*url.URL
	client    *http.Client
	counter   atomic.Uint32
	attempts  int
	maxFrame  uint32
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *httpClientTransport) Connect(config common.ClientConfig) error {
	if len(config.Endpoints) == 0 {
		return errors.New("no endpoints provided")
	}

	endpoints := make([]*url.URL, len(config.Endpoints))
	for i, endpoint := range config.Endpoints {
		if !strings.Contains(endpoint, "://") {
			endpoint = "http://" + endpoint
		}
		u, err := url.Parse(endpoint)
		if err != nil {
			return errors.Wrapf(err, "invalid endpoint %q", endpoint)
		}
		endpoints[i] = u
	}

	timeout := time.Duration(config.TimeoutSecond) * time.Second
	t.client = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: max(config.ConnectionsPerEndpoint, 10),
			IdleConnTimeout:     timeout,
		},
	}
	t.endpoints = endpoints
	t.attempts = max(config.RetryCount, 1)
	t.maxFrame = common.MaxFrameSize(config.MaxFrameSize)
	return nil
}

func (t *httpClientTransport) Send(shardID uint64, req []byte) ([]byte, error) {
	if t.client == nil {
		return nil, errors.New("http transport not initialized")
	}

	var lastErr error
	for i := 0; i < t.attempts; i++ {
		endpoint := t.endpoints[t.counter.Add(1)%uint32(len(t.endpoints))]

		resp, err := t.post(fmt.Sprintf("%s/%d", endpoint, shardID), req)
		if err == nil {
			return resp, nil
		}
		if !notSent(err) {
			return nil, err
		}
		lastErr = err
		Logger.Debugf("Request attempt %d/%d to %s failed: %v", i+1, t.attempts, endpoint.Host, err)
	}
	return nil, errors.Wrapf(lastErr, "request failed after %d attempts", t.attempts)
}

func (t *httpClientTransport) Close() error {
	if t.client != nil {
		t.client.CloseIdleConnections()
	}
	t.client = nil
	t.endpoints = nil
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// post sends one request and reads a response of at most maxFrame bytes
func (t *httpClientTransport) post(target string, req []byte) ([]byte, error) {
	httpResp, err := t.client.Post(target, "application/octet-stream", bytes.NewReader(req))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := httpResp.Body.Close(); err != nil {
			Logger.Errorf("Failed to close response body: %v", err)
		}
	}()

	if httpResp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return nil, errors.Newf("http error: %s: %s", httpResp.Status, strings.TrimSpace(string(msg)))
	}

	// read one byte beyond the limit to detect oversized responses
	data, err := io.ReadAll(io.LimitReader(httpResp.Body, int64(t.maxFrame)+1))
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) > uint64(t.maxFrame) {
		return nil, errors.Newf("response exceeds %d bytes", t.maxFrame)
	}
	return data, nil
}

// notSent reports whether err happened before the request reached a server (dialing).
// Only those requests are repeated, a scanner read that arrived must not run twice.
func notSent(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
