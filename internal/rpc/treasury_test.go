package rpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tos-network/prizepool/internal/fixedpoint"
)

func newTestWallet(t *testing.T, handler http.HandlerFunc) (*WalletClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	return NewWalletClient(server.URL, "", ""), server
}

func TestTreasuryValidNoAddress(t *testing.T) {
	wallet, server := newTestWallet(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"1.0.0"}`))
	})
	defer server.Close()

	tr := NewTreasuryFeeRecipient(wallet, "", time.Second)
	if tr.Valid() {
		t.Error("Valid() should be false with no treasury address configured")
	}
}

func TestTreasuryValidUnreachable(t *testing.T) {
	wallet := NewWalletClient("http://127.0.0.1:0", "", "")
	tr := NewTreasuryFeeRecipient(wallet, "tos1treasury", 200*time.Millisecond)
	if tr.Valid() {
		t.Error("Valid() should be false when the wallet RPC is unreachable")
	}
}

func TestTreasuryValidReachable(t *testing.T) {
	wallet, server := newTestWallet(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"1.0.0"}`))
	})
	defer server.Close()

	tr := NewTreasuryFeeRecipient(wallet, "tos1treasury", time.Second)
	if !tr.Valid() {
		t.Error("Valid() should be true when the wallet RPC responds")
	}
}

func TestTreasuryReceive(t *testing.T) {
	var gotDestinations []TransferDestination

	wallet, server := newTestWallet(t, func(w http.ResponseWriter, r *http.Request) {
		var req WalletRPCRequest
		body, _ := json.Marshal(req)
		_ = body
		json.NewDecoder(r.Body).Decode(&req)

		if req.Method == "build_transaction" {
			params, _ := json.Marshal(req.Params)
			var bp BuildTransactionParams
			json.Unmarshal(params, &bp)
			gotDestinations = bp.TxType.Transfers

			resp := map[string]interface{}{
				"jsonrpc": "2.0",
				"id":      req.ID,
				"result":  map[string]interface{}{"hash": "abc123"},
			}
			json.NewEncoder(w).Encode(resp)
			return
		}
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":null}`))
	})
	defer server.Close()

	tr := NewTreasuryFeeRecipient(wallet, "tos1treasury", time.Second)
	amount, _ := fixedpoint.FromWhole(5)

	if err := tr.Receive(amount); err != nil {
		t.Fatalf("Receive() error = %v", err)
	}

	if len(gotDestinations) != 1 {
		t.Fatalf("expected 1 destination, got %d", len(gotDestinations))
	}
	if gotDestinations[0].Address != "tos1treasury" {
		t.Errorf("destination address = %s, want tos1treasury", gotDestinations[0].Address)
	}
	if gotDestinations[0].Amount != amount.Raw() {
		t.Errorf("destination amount = %d, want %d", gotDestinations[0].Amount, amount.Raw())
	}
}
