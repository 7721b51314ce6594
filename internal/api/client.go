package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/MBenz12/vault-x/internal/vaulterr"
)

// Error is a non-2xx reply from a node. It unwraps to the program error
// named by Code, so errors.Is works across the wire.
type Error struct {
	StatusCode int
	Code       uint32
	Name       string
	Message    string
	Logs       []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("node returned %d: %s", e.StatusCode, strings.TrimSpace(e.Message))
}

func (e *Error) Unwrap() error {
	if pe, ok := vaulterr.FromCode(e.Code); ok {
		return pe
	}
	return nil
}

// NodeClient talks to a vaultx node's HTTP API.
type NodeClient struct {
	baseURL string
	http    *http.Client
}

func NewNodeClient(baseURL string) *NodeClient {
	return &NodeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *NodeClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &Error{StatusCode: resp.StatusCode, Message: string(bodyBytes)}
		var er errorResponse
		if json.Unmarshal(bodyBytes, &er) == nil && er.Error != "" {
			apiErr.Code, apiErr.Name, apiErr.Message, apiErr.Logs = er.Code, er.Name, er.Error, er.Logs
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(bodyBytes, out)
}

// Submit sends a signed transaction to the node's ledger.
func (c *NodeClient) Submit(ctx context.Context, tx *solana.Transaction) (*ReceiptView, error) {
	encoded, err := tx.ToBase64()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}
	var receipt ReceiptView
	err = c.do(ctx, http.MethodPost, "/tx", map[string]string{"transaction": encoded, "encoding": EncodingBase64}, &receipt)
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Airdrop mints lamports into key. Only local nodes serve it.
func (c *NodeClient) Airdrop(ctx context.Context, key solana.PublicKey, lamports uint64) (*ReceiptView, error) {
	var receipt ReceiptView
	err := c.do(ctx, http.MethodPost, "/airdrop", map[string]interface{}{"pubkey": key.String(), "lamports": lamports}, &receipt)
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (c *NodeClient) Vault(ctx context.Context, vault solana.PublicKey) (*VaultView, error) {
	var v VaultView
	if err := c.do(ctx, http.MethodGet, "/vaults/"+vault.String(), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
