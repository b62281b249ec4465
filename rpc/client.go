package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"snwatch/models"
)

const defaultTimeout = 10 * time.Second

// FetchError is any failure to get a usable answer from the node: transport
// errors and timeouts, non-2xx status, JSON-RPC errors and malformed JSON.
type FetchError struct {
	Method string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("rpc %s: %v", e.Method, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Error is an error object returned in a JSON-RPC response.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("json-rpc error %d: %s", e.Code, e.Message)
}

// Client calls a node's /json_rpc endpoint.
type Client struct {
	url    string
	client *http.Client
}

// NewClient creates a client for the node at baseURL. A zero timeout uses 10s.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		url:    strings.TrimRight(baseURL, "/") + "/json_rpc",
		client: &http.Client{Timeout: timeout},
	}
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	err := c.do(ctx, method, params, out)
	if err != nil {
		return &FetchError{Method: method, Err: err}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(request{JSONRPC: "2.0", ID: "0", Method: method, Params: params})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("http %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var rpcResp response
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return fmt.Errorf("json unmarshal: %w (body: %s)", err, string(raw[:min(200, len(raw))]))
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if len(rpcResp.Result) == 0 || string(rpcResp.Result) == "null" {
		return errors.New("empty result")
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("json unmarshal result: %w", err)
	}
	return nil
}

// GetInfo returns the node's current chain info.
func (c *Client) GetInfo(ctx context.Context) (*models.ChainInfo, error) {
	var info models.ChainInfo
	if err := c.call(ctx, "get_info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetServiceNodes returns every registered service node.
func (c *Client) GetServiceNodes(ctx context.Context) ([]*models.NodeState, error) {
	var result struct {
		States []*models.NodeState `json:"service_node_states"`
	}
	if err := c.call(ctx, "get_service_nodes", map[string]any{}, &result); err != nil {
		return nil, err
	}
	return result.States, nil
}
