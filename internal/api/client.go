package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"sdnctl/internal/model"
)

// Client is a thin HTTP client for flow-rule endpoints and the controller API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given base URL (e.g. http://host:port).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// BaseURL returns the URL requests are issued against.
func (c *Client) BaseURL() string { return c.baseURL }

// FlowRulesPath is the install endpoint for a target.
func FlowRulesPath(target string) string {
	return "/hosts/" + url.PathEscape(target) + "/flow_rules"
}

// FlowRulesUpdatePath is the update endpoint for a target.
func FlowRulesUpdatePath(target string) string {
	return FlowRulesPath(target) + "/update"
}

// InstallFlowRule posts a rule to the target's install endpoint. Any
// failure is returned as a *model.TransportError.
func (c *Client) InstallFlowRule(ctx context.Context, target string, rule FlowRule) (Ack, error) {
	return c.sendRule(ctx, target, FlowRulesPath(target), rule)
}

// UpdateFlowRule posts a rule to the target's update endpoint.
func (c *Client) UpdateFlowRule(ctx context.Context, target string, rule FlowRule) (Ack, error) {
	return c.sendRule(ctx, target, FlowRulesUpdatePath(target), rule)
}

func (c *Client) sendRule(ctx context.Context, target, path string, rule FlowRule) (Ack, error) {
	status, err := c.do(ctx, http.MethodPost, path, rule, nil)
	if err != nil {
		return Ack{}, &model.TransportError{Target: c.baseURL + path, Err: err}
	}
	return Ack{Target: target, RuleID: rule.ID, Status: status}, nil
}

// FlowRules lists the rules installed on a target.
func (c *Client) FlowRules(ctx context.Context, target string) (FlowRulesResponse, error) {
	var resp FlowRulesResponse
	if _, err := c.do(ctx, http.MethodGet, FlowRulesPath(target), nil, &resp); err != nil {
		return resp, &model.TransportError{Target: c.baseURL + FlowRulesPath(target), Err: err}
	}
	return resp, nil
}

// MACTable fetches a switch agent's forwarding table.
func (c *Client) MACTable(ctx context.Context) (MACTableResponse, error) {
	var resp MACTableResponse
	_, err := c.do(ctx, http.MethodGet, "/mac-table", nil, &resp)
	return resp, errors.Wrap(err, "mac table")
}

// DefineFlow asks the controller to install a flow.
func (c *Client) DefineFlow(ctx context.Context, req DefineFlowRequest) (FlowEntry, error) {
	var resp FlowEntry
	_, err := c.do(ctx, http.MethodPost, "/flows", req, &resp)
	return resp, errors.Wrapf(err, "define flow %s->%s", req.Src, req.Dst)
}

// Flows lists the controller's active paths.
func (c *Client) Flows(ctx context.Context) (FlowsResponse, error) {
	var resp FlowsResponse
	_, err := c.do(ctx, http.MethodGet, "/flows", nil, &resp)
	return resp, errors.Wrap(err, "list flows")
}

// Optimize triggers one energy optimization pass.
func (c *Client) Optimize(ctx context.Context) (OptimizeResponse, error) {
	var resp OptimizeResponse
	_, err := c.do(ctx, http.MethodPost, "/optimize", struct{}{}, &resp)
	return resp, errors.Wrap(err, "optimize")
}

// Loads fetches the switch loads known to the controller.
func (c *Client) Loads(ctx context.Context) (LoadsResponse, error) {
	var resp LoadsResponse
	_, err := c.do(ctx, http.MethodGet, "/loads", nil, &resp)
	return resp, errors.Wrap(err, "loads")
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		msg := strings.TrimSpace(string(body))
		if msg != "" {
			return res.StatusCode, fmt.Errorf("request failed: %s: %s", res.Status, msg)
		}
		return res.StatusCode, fmt.Errorf("request failed: %s", res.Status)
	}

	if out == nil || res.StatusCode == http.StatusNoContent {
		return res.StatusCode, nil
	}

	decoder := json.NewDecoder(res.Body)
	return res.StatusCode, decoder.Decode(out)
}
