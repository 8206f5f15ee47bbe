package backend

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/klingon-exchange/klingon-htlc/internal/chain"
)

const testTxID = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/blocks/tip/height", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "800010\n")
	})
	mux.HandleFunc("/tx/"+testTxID, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"txid":"`+testTxID+`","vout":[
			{"scriptpubkey":"0014751e76e8199196d454941c45d1b3a323f1433bd6","scriptpubkey_type":"v0_p2wpkh","value":100000},
			{"scriptpubkey":"0020aabb","scriptpubkey_type":"v0_p2wsh","value":50000}]}`)
	})
	mux.HandleFunc("/tx/"+testTxID+"/hex", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "0200000000")
	})
	mux.HandleFunc("/tx/"+testTxID+"/outspend/1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"spent":true,"txid":"bbbb","vin":0}`)
	})
	mux.HandleFunc("/tx/"+testTxID+"/outspend/0", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"spent":false}`)
	})
	mux.HandleFunc("/address/bcrt1qtest/utxo", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"txid":"`+testTxID+`","vout":0,"value":100000,"status":{"confirmed":true,"block_height":800001}},
			{"txid":"`+testTxID+`","vout":2,"value":7000,"status":{"confirmed":false}}]`)
	})
	mux.HandleFunc("/address/limited/utxo", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDefaultConfigs(t *testing.T) {
	configs := DefaultConfigs()

	for _, symbol := range chain.List() {
		cfg, ok := configs[symbol]
		if !ok {
			t.Errorf("expected default config for %s", symbol)
			continue
		}
		if cfg.MainnetURL == "" {
			t.Errorf("%s: mainnet URL should not be empty", symbol)
		}
		if cfg.TestnetURL == "" {
			t.Errorf("%s: testnet URL should not be empty", symbol)
		}
		if cfg.Type != TypeMempool {
			t.Errorf("%s: type = %s, want mempool", symbol, cfg.Type)
		}
	}
}

func TestNew(t *testing.T) {
	cfg := &Config{Type: TypeEsplora, MainnetURL: "https://blockstream.info/api/", Timeout: 5}

	b, err := New(cfg, chain.Mainnet)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if b.Type() != TypeEsplora {
		t.Errorf("Type() = %s, want esplora", b.Type())
	}
	esplora := b.(*EsploraBackend)
	if esplora.baseURL != "https://blockstream.info/api" {
		t.Errorf("baseURL = %s, trailing slash should be removed", esplora.baseURL)
	}
	if esplora.httpClient.Timeout != 5*time.Second {
		t.Errorf("timeout = %s, want 5s", esplora.httpClient.Timeout)
	}

	if _, err := New(cfg, chain.Regtest); err == nil {
		t.Error("expected error for missing regtest URL")
	}
	if _, err := New(&Config{Type: "electrum", MainnetURL: "x"}, chain.Mainnet); !errors.Is(err, ErrUnsupportedBackend) {
		t.Errorf("New(electrum) error = %v, want ErrUnsupportedBackend", err)
	}
}

func TestGetOutput(t *testing.T) {
	srv := newTestServer(t)
	b := NewMempoolBackend(srv.URL, time.Second)
	ctx := context.Background()

	out, err := b.GetOutput(ctx, testTxID, 1)
	if err != nil {
		t.Fatalf("GetOutput() error = %v", err)
	}
	if out.Value != 50000 || out.ScriptPubKey != "0020aabb" {
		t.Errorf("GetOutput() = %+v", out)
	}

	if _, err := b.GetOutput(ctx, testTxID, 2); !errors.Is(err, ErrOutputNotFound) {
		t.Errorf("GetOutput(vout 2) error = %v, want ErrOutputNotFound", err)
	}

	missing := "cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"
	if _, err := b.GetOutput(ctx, missing, 0); !errors.Is(err, ErrTxNotFound) {
		t.Errorf("GetOutput(missing) error = %v, want ErrTxNotFound", err)
	}
}

func TestGetOutspend(t *testing.T) {
	srv := newTestServer(t)
	b := NewEsploraBackend(srv.URL, time.Second)
	ctx := context.Background()

	spent, err := b.GetOutspend(ctx, testTxID, 1)
	if err != nil {
		t.Fatalf("GetOutspend() error = %v", err)
	}
	if !spent.Spent || spent.TxID != "bbbb" {
		t.Errorf("GetOutspend(1) = %+v", spent)
	}

	unspent, err := b.GetOutspend(ctx, testTxID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if unspent.Spent {
		t.Error("output 0 should be unspent")
	}
}

func TestGetAddressUTXOs(t *testing.T) {
	srv := newTestServer(t)
	b := NewMempoolBackend(srv.URL, time.Second)

	utxos, err := b.GetAddressUTXOs(context.Background(), "bcrt1qtest")
	if err != nil {
		t.Fatalf("GetAddressUTXOs() error = %v", err)
	}
	if len(utxos) != 2 {
		t.Fatalf("got %d utxos, want 2", len(utxos))
	}
	if utxos[0].Confirmations != 10 {
		t.Errorf("confirmations = %d, want 10", utxos[0].Confirmations)
	}
	if utxos[1].Confirmations != 0 {
		t.Errorf("unconfirmed utxo has %d confirmations", utxos[1].Confirmations)
	}
	if utxos[0].Amount != 100000 {
		t.Errorf("amount = %d", utxos[0].Amount)
	}

	if _, err := b.GetAddressUTXOs(context.Background(), "limited"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("error = %v, want ErrRateLimited", err)
	}
}

func TestGetRawTransactionAndHeight(t *testing.T) {
	srv := newTestServer(t)
	b := NewMempoolBackend(srv.URL, time.Second)
	ctx := context.Background()

	raw, err := b.GetRawTransaction(ctx, testTxID)
	if err != nil {
		t.Fatalf("GetRawTransaction() error = %v", err)
	}
	if hex.EncodeToString(raw) != "0200000000" {
		t.Errorf("raw = %x", raw)
	}

	height, err := b.GetBlockHeight(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if height != 800010 {
		t.Errorf("height = %d, want 800010", height)
	}

	if err := b.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestPingUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	b := NewMempoolBackend(srv.URL, time.Second)
	if err := b.Ping(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Ping() error = %v, want ErrNotConnected", err)
	}
}
