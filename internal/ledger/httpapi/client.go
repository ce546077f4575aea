package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"ctoken/internal/address"
	"ctoken/internal/ledger"
	"ctoken/internal/proof"
)

// Client talks to a Server. Transport failures surface as plain errors, so
// callers cannot mistake them for rejections.
type Client struct {
	base string
	http *http.Client
}

var _ ledger.Client = (*Client)(nil)

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// NewClient targets baseURL, e.g. "http://127.0.0.1:8899".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) SubmitAndConfirm(ctx context.Context, tx *ledger.Transaction) (*ledger.Receipt, error) {
	data, err := tx.Encode()
	if err != nil {
		return nil, err
	}
	var receipt ledger.Receipt
	if err := c.do(ctx, http.MethodPost, "/v1/transactions", cborType, bytes.NewReader(data), &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (c *Client) LatestAnchor(ctx context.Context) (ledger.Anchor, error) {
	var body AnchorBody
	if err := c.do(ctx, http.MethodGet, "/v1/anchor", "", nil, &body); err != nil {
		return ledger.Anchor{}, err
	}
	raw, err := base58.Decode(body.Hash)
	if err != nil || len(raw) != len(ledger.Anchor{}.Hash) {
		return ledger.Anchor{}, errors.Errorf("malformed anchor hash %q", body.Hash)
	}
	a := ledger.Anchor{Slot: body.Slot}
	copy(a.Hash[:], raw)
	return a, nil
}

func (c *Client) AccountState(ctx context.Context, addr address.Address) (*ledger.RawAccount, error) {
	var acct ledger.RawAccount
	if err := c.do(ctx, http.MethodGet, "/v1/accounts/"+addr.String(), "", nil, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

func (c *Client) TransactionStatus(ctx context.Context, id string, anchor ledger.Anchor) (ledger.Status, error) {
	var body StatusBody
	path := "/v1/transactions/" + url.PathEscape(id) + "?anchor=" + url.QueryEscape(anchor.String())
	if err := c.do(ctx, http.MethodGet, path, "", nil, &body); err != nil {
		return ledger.StatusUnknown, err
	}
	return ledger.ParseStatus(body.Status)
}

func (c *Client) Airdrop(ctx context.Context, addr address.Address, lamports uint64) (*ledger.Receipt, error) {
	data, err := json.Marshal(AirdropRequest{Address: addr, Lamports: lamports})
	if err != nil {
		return nil, errors.Wrap(err, "encode airdrop")
	}
	var receipt ledger.Receipt
	if err := c.do(ctx, http.MethodPost, "/v1/airdrop", "application/json", bytes.NewReader(data), &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Circuits fetches the range key fingerprints the ledger verifies against.
func (c *Client) Circuits(ctx context.Context) (map[proof.RangeLayout]string, error) {
	var body CircuitsBody
	if err := c.do(ctx, http.MethodGet, "/v1/circuits", "", nil, &body); err != nil {
		return nil, err
	}
	return body.Fingerprints, nil
}

// Health fetches the server's health report.
func (c *Client) Health(ctx context.Context) (*SystemHealth, error) {
	var health SystemHealth
	err := c.do(ctx, http.MethodGet, "/health", "", nil, &health)
	if err != nil && health.Status == "" {
		return nil, err
	}
	return &health, err
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return errors.Wrapf(err, "read %s response", path)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return errors.Wrapf(json.Unmarshal(data, out), "decode %s response", path)
	case resp.StatusCode == http.StatusServiceUnavailable && out != nil && path == "/health":
		_ = json.Unmarshal(data, out)
	}
	var eb ErrorBody
	if jerr := json.Unmarshal(data, &eb); jerr != nil {
		return errors.Errorf("%s %s: %s", method, path, resp.Status)
	}
	switch {
	case eb.Rejection != nil:
		return eb.Rejection
	case resp.StatusCode == http.StatusNotFound:
		return errors.Wrap(ledger.ErrAccountNotFound, eb.Message)
	default:
		return errors.Errorf("%s %s: %s: %s", method, path, resp.Status, eb.Message)
	}
}
