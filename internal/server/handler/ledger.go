package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/helixlabs/helixmarket/internal/domain"
	"github.com/helixlabs/helixmarket/internal/ledger"
)

// LedgerHandler serves the account balance and deposit endpoints.
type LedgerHandler struct {
	ledger *ledger.Ledger
	logger *slog.Logger
}

// NewLedgerHandler creates a LedgerHandler over the given ledger.
func NewLedgerHandler(l *ledger.Ledger, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{
		ledger: l,
		logger: logger,
	}
}

// depositRequest is the JSON body for the deposit faucet.
type depositRequest struct {
	Account  string `json:"account"`
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
}

// Deposit credits an account. This is the demo faucet; a production deploy
// replaces it with a chain-watcher that credits confirmed transfers.
// POST /api/ledger/deposit
func (h *LedgerHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var body depositRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Account == "" {
		writeError(w, http.StatusBadRequest, "missing account")
		return
	}

	currency := domain.Currency(body.Currency)
	if body.Currency == "" {
		currency = domain.CurrencyNative
	}

	err := h.ledger.Deposit(r.Context(), domain.Account(body.Account), domain.CurrencyAmount{
		Currency: currency,
		Amount:   body.Amount,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidAmount) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: deposit failed",
			slog.String("account", body.Account),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "deposit failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account": body.Account,
		"balance": h.ledger.Balance(r.Context(), domain.Account(body.Account), currency),
	})
}

// GetBalances returns every currency balance held by an account.
// GET /api/ledger/balances/{account}
func (h *LedgerHandler) GetBalances(w http.ResponseWriter, r *http.Request) {
	account := pathParam(r, "account")
	if account == "" {
		writeError(w, http.StatusBadRequest, "missing account")
		return
	}

	balances := h.ledger.Balances(r.Context(), domain.Account(account))
	writeJSON(w, http.StatusOK, map[string]any{
		"account":  account,
		"balances": balances,
	})
}
