package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/eKV/lib/batch"
	"github.com/ValentinKolb/eKV/lib/db"
	"github.com/ValentinKolb/eKV/lib/query"
	"github.com/ValentinKolb/eKV/lib/writelog"
	"github.com/ValentinKolb/eKV/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("client")

// ErrNotFound is returned by Get for missing keys
var ErrNotFound = errors.New("key not found")

// StatusError is returned for responses with an unexpected status code
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Client talks to the HTTP admin API of one or more eKV servers.
// Requests are distributed round-robin over the endpoints, failed connections are retried.
type Client struct {
	endpoints  []*url.URL
	http       *http.Client
	counter    atomic.Uint32
	retryCount int
}

// NewClient creates a client for the configured endpoints
func NewClient(config common.ClientConfig) (*Client, error) {
	if len(config.Endpoints) == 0 {
		return nil, errors.New("no endpoint configured")
	}

	// Parse each server URL
	parsed := make([]*url.URL, len(config.Endpoints))
	for i, endpoint := range config.Endpoints {
		endpoint = strings.TrimSpace(endpoint)
		if !strings.Contains(endpoint, "://") {
			endpoint = "http://" + endpoint
		}
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
		}
		parsed[i] = u
	}

	return &Client{
		endpoints: parsed,
		http: &http.Client{
			Timeout: time.Duration(config.TimeoutSecond) * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retryCount: max(1, config.RetryCount),
	}, nil
}

// Close releases idle connections
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// --------------------------------------------------------------------------
// Key-Value Operations
// --------------------------------------------------------------------------

// Put stores value under key
func (c *Client) Put(ctx context.Context, key string, value []byte, opts db.Options) error {
	params := url.Values{}
	if opts.TTL != 0 {
		params.Set("ttl", strconv.FormatInt(ttlSeconds(opts.TTL), 10))
	}
	if opts.Encrypted {
		params.Set("encrypted", "true")
	}
	if opts.Compressed {
		params.Set("compressed", "true")
	}
	_, err := c.do(ctx, http.MethodPut, "/kv/"+url.PathEscape(key), params, value, http.StatusOK)
	return err
}

// Get returns the value of key, decrypted selects the GetDecrypted path.
// A missing key yields ErrNotFound.
func (c *Client) Get(ctx context.Context, key string, decrypted bool) ([]byte, error) {
	params := url.Values{}
	if decrypted {
		params.Set("decrypted", "true")
	}
	body, err := c.do(ctx, http.MethodGet, "/kv/"+url.PathEscape(key), params, nil, http.StatusOK)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	return body, err
}

// Exists reports whether key is present
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.do(ctx, http.MethodHead, "/kv/"+url.PathEscape(key), nil, nil, http.StatusOK)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return err == nil, err
}

// Delete removes key and reports whether it existed
func (c *Client) Delete(ctx context.Context, key string) (bool, error) {
	var resp struct {
		Existed bool `json:"existed"`
	}
	err := c.doJSON(ctx, http.MethodDelete, "/kv/"+url.PathEscape(key), nil, nil, &resp)
	return resp.Existed, err
}

// Clear removes all keys
func (c *Client) Clear(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/clear", nil, nil, http.StatusNoContent)
	return err
}

// --------------------------------------------------------------------------
// Queries and Batches
// --------------------------------------------------------------------------

// Query runs an advanced query
func (c *Client) Query(ctx context.Context, kind query.Kind, pattern string) ([]query.SizeResult, error) {
	params := url.Values{"kind": {string(kind)}, "pattern": {pattern}}
	var results []query.SizeResult
	err := c.doJSON(ctx, http.MethodGet, "/query", params, nil, &results)
	return results, err
}

// Batch applies ops on the server. A failed batch is returned as a response with Success=false.
func (c *Client) Batch(ctx context.Context, ops []batch.Operation) (batch.Response, error) {
	body, err := json.Marshal(ops)
	if err != nil {
		return batch.Response{}, err
	}

	var resp batch.Response
	data, err := c.do(ctx, http.MethodPost, "/batch", nil, body, http.StatusOK, http.StatusConflict)
	if err != nil {
		return resp, err
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return resp, fmt.Errorf("invalid batch response: %w", err)
	}
	return resp, nil
}

// --------------------------------------------------------------------------
// Snapshots
// --------------------------------------------------------------------------

// Export returns all values in the given format
func (c *Client) Export(ctx context.Context, format string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/export", url.Values{"format": {format}}, nil, http.StatusOK)
}

// Import stores the records of data
func (c *Client) Import(ctx context.Context, data []byte, format string) (db.ImportResult, error) {
	var result db.ImportResult
	err := c.doJSON(ctx, http.MethodPost, "/import", url.Values{"format": {format}}, data, &result)
	return result, err
}

// Persist writes a snapshot on the server
func (c *Client) Persist(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/persist", nil, nil, http.StatusNoContent)
	return err
}

// --------------------------------------------------------------------------
// Monitoring
// --------------------------------------------------------------------------

// Stats returns the statistics of the server database
func (c *Client) Stats(ctx context.Context) (db.Statistics, error) {
	var stats db.Statistics
	err := c.doJSON(ctx, http.MethodGet, "/stats", nil, nil, &stats)
	return stats, err
}

// Log returns the write log of the server database
func (c *Client) Log(ctx context.Context) ([]writelog.Record, error) {
	var records []writelog.Record
	err := c.doJSON(ctx, http.MethodGet, "/log", nil, nil, &records)
	return records, err
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ttlSeconds converts ttl to the whole seconds of the API.
// Positive fractions round up so a short ttl never turns into no expiry, negative ones stay negative.
func ttlSeconds(ttl time.Duration) int64 {
	secs := int64(ttl / time.Second)
	switch {
	case ttl > 0 && ttl%time.Second != 0:
		secs++
	case ttl < 0 && secs == 0:
		secs = -1
	}
	return secs
}

func (c *Client) doJSON(ctx context.Context, method, path string, params url.Values, body []byte, out any) error {
	data, err := c.do(ctx, method, path, params, body, http.StatusOK)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid response from %s %s: %w", method, path, err)
	}
	return nil
}

// do sends a request to the next endpoint and returns the response body.
// Connection errors are retried, any status not in expected is returned as *StatusError.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body []byte, expected ...int) ([]byte, error) {
	// Select the next server via round-robin
	idx := c.counter.Add(1) % uint32(len(c.endpoints))
	target := c.endpoints[idx].JoinPath(path)
	if len(params) > 0 {
		target.RawQuery = params.Encode()
	}

	var (
		resp *http.Response
		err  error
	)
	for i := 0; i < c.retryCount; i++ {
		var req *http.Request
		req, err = http.NewRequestWithContext(ctx, method, target.String(), bytes.NewReader(body))
		if err != nil {
			return nil, err
		}

		resp, err = c.http.Do(req)
		if err == nil || ctx.Err() != nil {
			break
		}
		Logger.Debugf("request %s %s failed (%d/%d): %v", method, path, i+1, c.retryCount, err)
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			Logger.Errorf("failed to close response body: %v", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	for _, code := range expected {
		if resp.StatusCode == code {
			return data, nil
		}
	}

	// Extract the error message of the server
	var apiErr struct {
		Error string `json:"error"`
	}
	msg := resp.Status
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
		msg = apiErr.Error
	}
	return nil, &StatusError{StatusCode: resp.StatusCode, Message: msg}
}
