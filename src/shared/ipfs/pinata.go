package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	defaultAPIURL       = "https://api.pinata.cloud"
	defaultFetchTimeout = 5 * time.Second
	defaultPinTimeout   = 30 * time.Second
)

// DefaultGateways is the fallback chain tried in order on reads. The Pinata
// gateway is first because it is fastest for content we pinned ourselves.
var DefaultGateways = []string{
	"https://gateway.pinata.cloud/ipfs/",
	"https://ipfs.io/ipfs/",
	"https://cloudflare-ipfs.com/ipfs/",
}

// PinataClient pins metadata through the Pinata API and reads it back through
// a gateway fallback chain. Every read attempt has its own short timeout so a
// dead gateway cannot stall a whole sync pass.
type PinataClient struct {
	apiURL       string
	apiKey       string
	apiSecret    string
	gateways     []string
	httpClient   *http.Client
	fetchTimeout time.Duration
}

func NewPinata(apiKey, apiSecret string, gateways []string) *PinataClient {
	if len(gateways) == 0 {
		gateways = DefaultGateways
	}
	return &PinataClient{
		apiURL:       defaultAPIURL,
		apiKey:       apiKey,
		apiSecret:    apiSecret,
		gateways:     gateways,
		httpClient:   &http.Client{Timeout: defaultPinTimeout},
		fetchTimeout: defaultFetchTimeout,
	}
}

type pinRequest struct {
	PinataContent  *ProposalMetadata `json:"pinataContent"`
	PinataMetadata pinMetadata       `json:"pinataMetadata"`
}

type pinMetadata struct {
	Name      string            `json:"name"`
	KeyValues map[string]string `json:"keyvalues"`
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

// Put pins the metadata JSON and returns its content address.
func (p *PinataClient) Put(ctx context.Context, metadata *ProposalMetadata) (string, error) {
	name := metadata.Title
	if len(name) > 30 {
		name = name[:30]
	}
	body, err := json.Marshal(pinRequest{
		PinataContent: metadata,
		PinataMetadata: pinMetadata{
			Name: "privyballot-proposal-" + name,
			KeyValues: map[string]string{
				"creator": metadata.Creator,
				"type":    "proposal",
				"app":     "privyballot",
			},
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/pinning/pinJSONToIPFS", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	p.authHeaders(req)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("pinata pin: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("pinata pin: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("pinata pin: decode response: %w", err)
	}
	if out.IpfsHash == "" {
		return "", fmt.Errorf("pinata pin: empty hash in response")
	}
	return out.IpfsHash, nil
}

// Get walks the gateway chain in order and returns the first clean result.
// Gateway failures are logged and skipped; if every gateway misses, the
// caller sees ErrNotFound.
func (p *PinataClient) Get(ctx context.Context, address string) (*ProposalMetadata, error) {
	for _, gw := range p.gateways {
		metadata, err := p.fetchOne(ctx, gw, address)
		if err == nil {
			return metadata, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Printf("ipfs: gateway %s miss for %s: %v", gw, address, err)
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, address)
}

func (p *PinataClient) fetchOne(ctx context.Context, gateway, address string) (*ProposalMetadata, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, gateway+address, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var metadata ProposalMetadata
	if err := json.NewDecoder(resp.Body).Decode(&metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	metadata.Sanitize()
	return &metadata, nil
}

// Delete unpins the address. Content may remain reachable through public
// gateways until it ages out of their caches.
func (p *PinataClient) Delete(ctx context.Context, address string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.apiURL+"/pinning/unpin/"+address, nil)
	if err != nil {
		return false, err
	}
	p.authHeaders(req)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("pinata unpin: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return false, fmt.Errorf("pinata unpin: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return true, nil
}

func (p *PinataClient) authHeaders(req *http.Request) {
	req.Header.Set("pinata_api_key", p.apiKey)
	req.Header.Set("pinata_secret_api_key", p.apiSecret)
}
