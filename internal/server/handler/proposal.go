package handler

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/helixlabs/helixmarket/internal/domain"
	"github.com/helixlabs/helixmarket/internal/engine"
)

// ProposalHandler serves the proposal lifecycle endpoints.
type ProposalHandler struct {
	registry *engine.Registry
	logger   *slog.Logger
}

// NewProposalHandler creates a ProposalHandler over the given registry.
func NewProposalHandler(registry *engine.Registry, logger *slog.Logger) *ProposalHandler {
	return &ProposalHandler{
		registry: registry,
		logger:   logger,
	}
}

// createProposalRequest is the JSON body for proposal creation.
type createProposalRequest struct {
	Title         string `json:"title"`
	Researcher    string `json:"researcher"`
	AuditURL      string `json:"audit_url"`
	Description   string `json:"description"`
	TrustScore    int    `json:"trust_score"`
	IdentityToken string `json:"identity_token"`

	FundingTarget         int64  `json:"funding_target"`
	FundingTargetCurrency string `json:"funding_target_currency"`

	SeedYes int64 `json:"seed_yes"`
	SeedNo  int64 `json:"seed_no"`
}

// CreateProposal registers a new proposal.
// POST /api/proposals
func (h *ProposalHandler) CreateProposal(w http.ResponseWriter, r *http.Request) {
	var body createProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	p, err := h.registry.CreateProposal(r.Context(), engine.CreateRequest{
		Title:         body.Title,
		Researcher:    domain.Account(body.Researcher),
		AuditURL:      body.AuditURL,
		Description:   body.Description,
		TrustScore:    body.TrustScore,
		IdentityToken: body.IdentityToken,
		FundingTarget: domain.CurrencyAmount{
			Currency: domain.Currency(body.FundingTargetCurrency),
			Amount:   body.FundingTarget,
		},
		SeedYes: body.SeedYes,
		SeedNo:  body.SeedNo,
	})
	if err != nil {
		h.writeEngineError(w, r, "create proposal", err)
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

// listProposalsResponse wraps the list endpoint output with metadata.
type listProposalsResponse struct {
	Proposals []*domain.Proposal `json:"proposals"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
}

// ListProposals returns proposals ordered by id with pagination.
// GET /api/proposals?limit=50&offset=0
func (h *ProposalHandler) ListProposals(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	proposals, err := h.registry.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list proposals failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list proposals")
		return
	}

	writeJSON(w, http.StatusOK, listProposalsResponse{
		Proposals: proposals,
		Limit:     opts.Limit,
		Offset:    opts.Offset,
	})
}

// GetProposal returns a single proposal by id.
// GET /api/proposals/{id}
func (h *ProposalHandler) GetProposal(w http.ResponseWriter, r *http.Request) {
	id, ok := h.proposalID(w, r)
	if !ok {
		return
	}

	p, err := h.registry.Get(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, r, "get proposal", err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// GetHistory returns the price history for a proposal.
// GET /api/proposals/{id}/history
func (h *ProposalHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.proposalID(w, r)
	if !ok {
		return
	}

	history, err := h.registry.History(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, r, "get history", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"proposal_id": id,
		"history":     history,
	})
}

// anchorDataRequest is the JSON body for anchoring research data.
type anchorDataRequest struct {
	Account string `json:"account"`
	Pointer string `json:"pointer"`
}

// AnchorData records the researcher's off-chain data pointer.
// POST /api/proposals/{id}/data
func (h *ProposalHandler) AnchorData(w http.ResponseWriter, r *http.Request) {
	id, ok := h.proposalID(w, r)
	if !ok {
		return
	}

	var body anchorDataRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(body.Pointer) == "" {
		writeError(w, http.StatusBadRequest, "missing data pointer")
		return
	}

	if err := h.registry.UploadResearchData(r.Context(), id, domain.Account(body.Account), body.Pointer); err != nil {
		h.writeEngineError(w, r, "anchor data", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"proposal_id": id, "pointer": body.Pointer})
}

// mintIPRequest is the JSON body for minting the IP record.
type mintIPRequest struct {
	Account string `json:"account"`
}

// MintIP records the one-time IP mint for a proposal.
// POST /api/proposals/{id}/ip
func (h *ProposalHandler) MintIP(w http.ResponseWriter, r *http.Request) {
	id, ok := h.proposalID(w, r)
	if !ok {
		return
	}

	var body mintIPRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.registry.MintIPRecord(r.Context(), id, domain.Account(body.Account)); err != nil {
		h.writeEngineError(w, r, "mint ip", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"proposal_id": id, "ip_minted": true})
}

// buyRequest is the JSON body for a share purchase.
type buyRequest struct {
	Account       string `json:"account"`
	Side          string `json:"side"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	IdentityToken string `json:"identity_token"`
}

// Buy purchases outcome shares on one side of a proposal's market.
// POST /api/proposals/{id}/buy
func (h *ProposalHandler) Buy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.proposalID(w, r)
	if !ok {
		return
	}

	var body buyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	currency := body.Currency
	if currency == "" {
		currency = string(domain.CurrencyNative)
	}

	result, err := h.registry.Buy(r.Context(), engine.BuyRequest{
		ProposalID:    id,
		Account:       domain.Account(body.Account),
		Side:          domain.Side(body.Side),
		Amount:        body.Amount,
		Currency:      domain.Currency(currency),
		IdentityToken: body.IdentityToken,
	})
	if err != nil {
		h.writeEngineError(w, r, "buy", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// CheckFunding evaluates the funding trigger and releases the grant when the
// policy is satisfied.
// POST /api/proposals/{id}/funding-check
func (h *ProposalHandler) CheckFunding(w http.ResponseWriter, r *http.Request) {
	id, ok := h.proposalID(w, r)
	if !ok {
		return
	}

	released, paid, err := h.registry.CheckFundingTrigger(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, r, "funding check", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"proposal_id": id,
		"released":    released,
		"paid":        paid,
	})
}

// resolveRequest is the JSON body for oracle resolution. Data, proof nodes
// and signature are hex encoded.
type resolveRequest struct {
	Outcome     bool     `json:"outcome"`
	Data        string   `json:"data"`
	MerkleProof []string `json:"merkle_proof"`
	Signature   string   `json:"signature"`
}

// Resolve applies a verified oracle attestation to the proposal.
// POST /api/proposals/{id}/resolve
func (h *ProposalHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, ok := h.proposalID(w, r)
	if !ok {
		return
	}

	var body resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	att, err := body.attestation(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.registry.Resolve(r.Context(), id, att); err != nil {
		h.writeEngineError(w, r, "resolve", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"proposal_id": id,
		"outcome":     body.Outcome,
	})
}

func (b resolveRequest) attestation(proposalID int64) (domain.Attestation, error) {
	data, err := decodeHexField("data", b.Data)
	if err != nil {
		return domain.Attestation{}, err
	}
	sig, err := decodeHexField("signature", b.Signature)
	if err != nil {
		return domain.Attestation{}, err
	}

	proof := make([][]byte, 0, len(b.MerkleProof))
	for _, node := range b.MerkleProof {
		decoded, err := decodeHexField("merkle_proof", node)
		if err != nil {
			return domain.Attestation{}, err
		}
		proof = append(proof, decoded)
	}

	return domain.Attestation{
		ProposalID:  proposalID,
		Outcome:     b.Outcome,
		Data:        data,
		MerkleProof: proof,
		Signature:   sig,
	}, nil
}

func decodeHexField(name, value string) ([]byte, error) {
	decoded, err := hex.DecodeString(strings.TrimPrefix(value, "0x"))
	if err != nil {
		return nil, errors.New("invalid hex in " + name)
	}
	return decoded, nil
}

// claimRequest is the JSON body for claiming winnings.
type claimRequest struct {
	Account string `json:"account"`
}

// Claim pays out the caller's pro-rata share of the settlement.
// POST /api/proposals/{id}/claim
func (h *ProposalHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id, ok := h.proposalID(w, r)
	if !ok {
		return
	}

	var body claimRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	payout, err := h.registry.ClaimWinnings(r.Context(), id, domain.Account(body.Account))
	if err != nil {
		h.writeEngineError(w, r, "claim", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"proposal_id": id,
		"payout":      payout,
	})
}

// proposalID parses the {id} path parameter, writing a 400 on failure.
func (h *ProposalHandler) proposalID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := pathParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		writeError(w, http.StatusBadRequest, "invalid proposal id")
		return 0, false
	}
	return id, true
}

// writeEngineError maps engine sentinels to HTTP statuses. Unknown errors are
// logged and surfaced as 500s without leaking internals.
func (h *ProposalHandler) writeEngineError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrProposalNotFound), errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "proposal not found")
	case errors.Is(err, domain.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds):
		writeError(w, http.StatusPaymentRequired, "insufficient funds")
	case errors.Is(err, domain.ErrInsiderRestricted):
		writeError(w, http.StatusForbidden, "insider trading restricted")
	case errors.Is(err, domain.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, "not authorized")
	case errors.Is(err, domain.ErrMarketClosed):
		writeError(w, http.StatusConflict, "market closed")
	case errors.Is(err, domain.ErrAlreadyMinted),
		errors.Is(err, domain.ErrAlreadyResolved),
		errors.Is(err, domain.ErrAlreadyClaimed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidProof):
		writeError(w, http.StatusUnprocessableEntity, "invalid attestation proof")
	default:
		h.logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, op+" failed")
	}
}
