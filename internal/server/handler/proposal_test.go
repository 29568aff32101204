package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixlabs/helixmarket/internal/domain"
	"github.com/helixlabs/helixmarket/internal/engine"
	"github.com/helixlabs/helixmarket/internal/ledger"
	"github.com/helixlabs/helixmarket/internal/oracle"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	proposals *ProposalHandler
	ledgerH   *LedgerHandler
	ledger    *ledger.Ledger
	registry  *engine.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	lg := ledger.New(nil, testLogger())
	trigger := &engine.ElapsedGate{Window: time.Minute, Threshold: 0.6}
	reg := engine.NewRegistry(
		engine.Config{Rate: domain.ConversionRate{Num: 1, Den: 1, Version: 1}},
		lg, oracle.StaticGateway{}, trigger, nil, testLogger(),
	)
	return &fixture{
		proposals: NewProposalHandler(reg, testLogger()),
		ledgerH:   NewLedgerHandler(lg, testLogger()),
		ledger:    lg,
		registry:  reg,
	}
}

// do invokes a handler with an optional JSON body and {id} path value.
func do(t *testing.T, h http.HandlerFunc, method string, body any, pathVals map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, "/", &buf)
	for k, v := range pathVals {
		req.SetPathValue(k, v)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func idVals(id int64) map[string]string {
	return map[string]string{"id": fmt.Sprintf("%d", id)}
}

func TestCreateProposalEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := do(t, f.proposals.CreateProposal, http.MethodPost, map[string]any{
		"title":      "Longevity compound trial",
		"researcher": "0xresearcher",
		"audit_url":  "https://audits.example/1",
		"seed_yes":   300,
		"seed_no":    700,
	}, nil)

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(0), body["id"])
	assert.Equal(t, "created", body["state"])

	// Missing title maps to 400.
	rec = do(t, f.proposals.CreateProposal, http.MethodPost, map[string]any{
		"researcher": "0xresearcher",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Malformed JSON maps to 400.
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("{"))
	raw := httptest.NewRecorder()
	f.proposals.CreateProposal(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestGetProposalEndpoint(t *testing.T) {
	f := newFixture(t)
	p, err := f.registry.CreateProposal(context.Background(), engine.CreateRequest{
		Title: "x", Researcher: "0xr",
	})
	require.NoError(t, err)

	rec := do(t, f.proposals.GetProposal, http.MethodGet, nil, idVals(p.ID))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, f.proposals.GetProposal, http.MethodGet, nil, idVals(404))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, f.proposals.GetProposal, http.MethodGet, nil, map[string]string{"id": "abc"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBuyEndpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.registry.CreateProposal(ctx, engine.CreateRequest{Title: "x", Researcher: "0xr"})
	require.NoError(t, err)
	require.NoError(t, f.ledger.Deposit(ctx, "0xalice", domain.CurrencyAmount{Currency: domain.CurrencyNative, Amount: 1000}))

	// Currency defaults to native when omitted.
	rec := do(t, f.proposals.Buy, http.MethodPost, map[string]any{
		"account": "0xalice",
		"side":    "yes",
		"amount":  600,
	}, idVals(p.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(600), body["shares"])
	assert.Equal(t, float64(1), body["price_yes"])

	// Insufficient funds maps to 402.
	rec = do(t, f.proposals.Buy, http.MethodPost, map[string]any{
		"account": "0xalice", "side": "yes", "amount": 100_000,
	}, idVals(p.ID))
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	// The researcher is locked out of their own market: 403.
	rec = do(t, f.proposals.Buy, http.MethodPost, map[string]any{
		"account": "0xr", "side": "yes", "amount": 10,
	}, idVals(p.ID))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Bad side maps to 400.
	rec = do(t, f.proposals.Buy, http.MethodPost, map[string]any{
		"account": "0xalice", "side": "maybe", "amount": 10,
	}, idVals(p.ID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveAndClaimEndpoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.registry.CreateProposal(ctx, engine.CreateRequest{Title: "x", Researcher: "0xr"})
	require.NoError(t, err)
	require.NoError(t, f.ledger.Deposit(ctx, "0xalice", domain.CurrencyAmount{Currency: domain.CurrencyNative, Amount: 500}))
	_, err = f.registry.Buy(ctx, engine.BuyRequest{
		ProposalID: p.ID, Account: "0xalice", Side: domain.SideYes,
		Amount: 500, Currency: domain.CurrencyNative,
	})
	require.NoError(t, err)

	// Claim before resolution conflicts.
	rec := do(t, f.proposals.Claim, http.MethodPost, map[string]any{"account": "0xalice"}, idVals(p.ID))
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Hex attestation payload; the static gateway checks shape only.
	data := oracle.EncodeOutcome(true)
	rec = do(t, f.proposals.Resolve, http.MethodPost, map[string]any{
		"outcome": true,
		"data":    "0x" + fmt.Sprintf("%x", data),
	}, idVals(p.ID))
	require.Equal(t, http.StatusOK, rec.Code)

	// Garbage hex maps to 400 before reaching the engine.
	rec = do(t, f.proposals.Resolve, http.MethodPost, map[string]any{
		"outcome": true, "data": "zz",
	}, idVals(p.ID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Double resolution conflicts.
	rec = do(t, f.proposals.Resolve, http.MethodPost, map[string]any{
		"outcome": true, "data": "0x" + fmt.Sprintf("%x", data),
	}, idVals(p.ID))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, f.proposals.Claim, http.MethodPost, map[string]any{"account": "0xalice"}, idVals(p.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	payout := body["payout"].(map[string]any)
	assert.Equal(t, float64(500), payout["native"])

	rec = do(t, f.proposals.Claim, http.MethodPost, map[string]any{"account": "0xalice"}, idVals(p.ID))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAnchorAndMintEndpoints(t *testing.T) {
	f := newFixture(t)
	p, err := f.registry.CreateProposal(context.Background(), engine.CreateRequest{Title: "x", Researcher: "0xr"})
	require.NoError(t, err)

	rec := do(t, f.proposals.AnchorData, http.MethodPost, map[string]any{
		"account": "0xr", "pointer": "QmHash",
	}, idVals(p.ID))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, f.proposals.AnchorData, http.MethodPost, map[string]any{
		"account": "0xr", "pointer": "   ",
	}, idVals(p.ID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, f.proposals.AnchorData, http.MethodPost, map[string]any{
		"account": "0xother", "pointer": "QmHash",
	}, idVals(p.ID))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, f.proposals.MintIP, http.MethodPost, map[string]any{"account": "0xr"}, idVals(p.ID))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, f.proposals.MintIP, http.MethodPost, map[string]any{"account": "0xr"}, idVals(p.ID))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListProposalsEndpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.registry.CreateProposal(ctx, engine.CreateRequest{Title: "x", Researcher: "0xr"})
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/?limit=2&offset=1", nil)
	rec := httptest.NewRecorder()
	f.proposals.ListProposals(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["limit"])
	assert.Equal(t, float64(1), body["offset"])
	assert.Len(t, body["proposals"], 2)
}

func TestDepositAndBalancesEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := do(t, f.ledgerH.Deposit, http.MethodPost, map[string]any{
		"account": "0xalice", "amount": 250,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(250), body["balance"])

	rec = do(t, f.ledgerH.Deposit, http.MethodPost, map[string]any{
		"account": "0xalice", "amount": -5,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, f.ledgerH.Deposit, http.MethodPost, map[string]any{"amount": 5}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, f.ledgerH.GetBalances, http.MethodGet, nil, map[string]string{"account": "0xalice"})
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	balances := body["balances"].(map[string]any)
	assert.Equal(t, float64(250), balances["native"])
	assert.Equal(t, float64(0), balances["fxrp"])
}
