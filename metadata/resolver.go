// Package metadata resolves the off-chain documents that auctions reference
// by content hash.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gavel/cryptoutil"
)

// Document is the off-chain description of an auctioned item. Documents are
// immutable: the ref is the hash of the raw bytes.
type Document struct {
	Ref         string          `json:"ref"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	ImageURL    string          `json:"image_url,omitempty"`
	Raw         json.RawMessage `json:"-"`
}

type Resolver interface {
	Resolve(ctx context.Context, ref string) (*Document, error)
}

//
//
//

// HTTPResolver fetches documents from a content-addressed HTTP store and
// verifies them against their ref before returning.
type HTTPResolver struct {
	baseurl *url.URL
	client  *http.Client
}

var _ Resolver = (*HTTPResolver)(nil)

func NewHTTPResolver(addr string) (*HTTPResolver, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}

	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parse resolver address: %w", err)
	}

	return &HTTPResolver{
		baseurl: u,
		client:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (r *HTTPResolver) Resolve(ctx context.Context, ref string) (*Document, error) {
	if err := cryptoutil.ValidateContentRef(ref); err != nil {
		return nil, fmt.Errorf("bad ref: %w", err)
	}

	u := *r.baseurl
	u.Path = "/" + ref

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("document store returned %s", resp.Status)
	}

	buf, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	return ParseDocument(ref, buf)
}

// ParseDocument verifies that buf hashes to ref and decodes it.
func ParseDocument(ref string, buf []byte) (*Document, error) {
	if err := cryptoutil.VerifyContent(ref, buf); err != nil {
		return nil, fmt.Errorf("verify document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(buf, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	doc.Ref = ref
	doc.Raw = buf

	return &doc, nil
}
