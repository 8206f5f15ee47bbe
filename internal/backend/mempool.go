package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/klingon-exchange/klingon-htlc/pkg/helpers"
)

// MempoolBackend implements Backend using the mempool.space API.
// Compatible with mempool.space, litecoinspace.org, and self-hosted instances.
type MempoolBackend struct {
	baseURL    string
	httpClient *http.Client
}

// NewMempoolBackend creates a new mempool.space backend.
func NewMempoolBackend(baseURL string, timeout time.Duration) *MempoolBackend {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MempoolBackend{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Type returns TypeMempool.
func (m *MempoolBackend) Type() Type {
	return TypeMempool
}

// Ping tests the connection to the API.
func (m *MempoolBackend) Ping(ctx context.Context) error {
	if _, err := m.GetBlockHeight(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

// GetOutput returns one output of a transaction.
func (m *MempoolBackend) GetOutput(ctx context.Context, txID string, vout uint32) (*TxOutput, error) {
	var result struct {
		Vout []TxOutput `json:"vout"`
	}
	if err := m.get(ctx, "/tx/"+txID, &result, ErrTxNotFound); err != nil {
		return nil, err
	}
	if int(vout) >= len(result.Vout) {
		return nil, fmt.Errorf("%w: %s:%d", ErrOutputNotFound, txID, vout)
	}

	out := result.Vout[vout]
	if _, err := helpers.DecodeHex(out.ScriptPubKey); err != nil {
		return nil, fmt.Errorf("invalid scriptpubkey for %s:%d: %w", txID, vout, err)
	}
	return &out, nil
}

// GetOutspend reports whether an output is spent.
func (m *MempoolBackend) GetOutspend(ctx context.Context, txID string, vout uint32) (*Outspend, error) {
	var result Outspend
	path := "/tx/" + txID + "/outspend/" + strconv.FormatUint(uint64(vout), 10)
	if err := m.get(ctx, path, &result, ErrTxNotFound); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetAddressUTXOs returns unspent outputs for an address.
func (m *MempoolBackend) GetAddressUTXOs(ctx context.Context, address string) ([]UTXO, error) {
	var result []struct {
		TxID   string `json:"txid"`
		Vout   uint32 `json:"vout"`
		Status struct {
			Confirmed   bool  `json:"confirmed"`
			BlockHeight int64 `json:"block_height"`
		} `json:"status"`
		Value uint64 `json:"value"`
	}

	if err := m.get(ctx, "/address/"+address+"/utxo", &result, ErrAddressNotFound); err != nil {
		return nil, err
	}

	// Fall back to confirmed/unconfirmed if the tip is unavailable
	currentHeight, err := m.GetBlockHeight(ctx)
	if err != nil {
		currentHeight = 0
	}

	utxos := make([]UTXO, len(result))
	for i, u := range result {
		var confirmations int64
		if u.Status.Confirmed && u.Status.BlockHeight > 0 {
			if currentHeight > 0 {
				confirmations = currentHeight - u.Status.BlockHeight + 1
			} else {
				confirmations = 1
			}
		}
		utxos[i] = UTXO{
			TxID:          u.TxID,
			Vout:          u.Vout,
			Amount:        u.Value,
			Confirmations: confirmations,
			BlockHeight:   u.Status.BlockHeight,
		}
	}

	return utxos, nil
}

// GetRawTransaction returns the serialized transaction.
func (m *MempoolBackend) GetRawTransaction(ctx context.Context, txID string) ([]byte, error) {
	body, err := m.getText(ctx, "/tx/"+txID+"/hex", ErrTxNotFound)
	if err != nil {
		return nil, err
	}
	raw, err := helpers.DecodeHex(body)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction hex: %w", err)
	}
	return raw, nil
}

// GetBlockHeight returns the current block height.
func (m *MempoolBackend) GetBlockHeight(ctx context.Context) (int64, error) {
	body, err := m.getText(ctx, "/blocks/tip/height", ErrNotConnected)
	if err != nil {
		return 0, err
	}
	height, err := strconv.ParseInt(body, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid block height %q: %w", body, err)
	}
	return height, nil
}

// get performs a GET request and decodes a JSON response.
func (m *MempoolBackend) get(ctx context.Context, path string, result interface{}, notFound error) error {
	resp, err := m.do(ctx, path, notFound)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return json.NewDecoder(resp.Body).Decode(result)
}

// getText performs a GET request and returns the trimmed plain-text body.
func (m *MempoolBackend) getText(ctx context.Context, path string, notFound error) (string, error) {
	resp, err := m.do(ctx, path, notFound)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

func (m *MempoolBackend) do(ctx context.Context, path string, notFound error) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Add cache-busting headers to avoid stale CDN responses
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp, nil
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, notFound
	case http.StatusTooManyRequests:
		resp.Body.Close()
		return nil, ErrRateLimited
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

// Ensure MempoolBackend implements Backend
var _ Backend = (*MempoolBackend)(nil)
