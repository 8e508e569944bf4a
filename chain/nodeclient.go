package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// NodeClient implements Chain against a settlement node's JSON/HTTP RPC.
type NodeClient struct {
	chainID string
	baseurl *url.URL
	client  *http.Client
}

var _ Chain = (*NodeClient)(nil)

// NewNodeClient connects to the node at addr and confirms its chain ID.
func NewNodeClient(ctx context.Context, addr string) (*NodeClient, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}

	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parse node address: %w", err)
	}

	c := &NodeClient{
		baseurl: u,
		client:  &http.Client{Timeout: 10 * time.Second},
	}

	var status struct {
		ChainID string `json:"chain_id"`
	}
	if err := c.get(ctx, "/v1/status", &status); err != nil {
		return nil, fmt.Errorf("query node status: %w", err)
	}
	if status.ChainID == "" {
		return nil, fmt.Errorf("node reported empty chain ID")
	}

	c.chainID = status.ChainID
	return c, nil
}

func (c *NodeClient) ID() string {
	return c.chainID
}

func (c *NodeClient) LatestHeight(ctx context.Context) (int64, error) {
	var status struct {
		LatestHeight int64 `json:"latest_height"`
	}
	if err := c.get(ctx, "/v1/status", &status); err != nil {
		return 0, fmt.Errorf("query node status: %w", err)
	}
	return status.LatestHeight, nil
}

func (c *NodeClient) VerifyDeposit(ctx context.Context, depositTx []byte, addr string, amount int64) error {
	req := struct {
		Tx     string `json:"tx"`
		From   string `json:"from"`
		Amount int64  `json:"amount"`
	}{
		Tx:     hex.EncodeToString(depositTx),
		From:   addr,
		Amount: amount,
	}

	var res struct {
		Escrowed bool `json:"escrowed"`
	}
	if err := c.post(ctx, "/v1/deposits/verify", req, &res); err != nil {
		return fmt.Errorf("verify deposit: %w", err)
	}
	if !res.Escrowed {
		return ErrNoDeposit
	}
	return nil
}

func (c *NodeClient) Transfer(ctx context.Context, addr string, amount int64) error {
	req := struct {
		To     string `json:"to"`
		Amount int64  `json:"amount"`
	}{
		To:     addr,
		Amount: amount,
	}

	var res struct {
		Accepted bool `json:"accepted"`
	}
	if err := c.post(ctx, "/v1/transfers", req, &res); err != nil {
		return fmt.Errorf("%w: %s", ErrTransferFailed, err)
	}
	if !res.Accepted {
		return ErrTransferFailed
	}
	return nil
}

//
//
//

func (c *NodeClient) get(ctx context.Context, path string, res interface{}) error {
	u := *c.baseurl
	u.Path = path

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	return c.do(req, res)
}

func (c *NodeClient) post(ctx context.Context, path string, body, res interface{}) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	u := *c.baseurl
	u.Path = path

	req, err := http.NewRequestWithContext(ctx, "POST", u.String(), bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("content-type", "application/json")

	return c.do(req, res)
}

func (c *NodeClient) do(req *http.Request, res interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node returned %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(res); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
