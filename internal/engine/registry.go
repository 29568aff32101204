package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helixlabs/helixmarket/internal/domain"
	"github.com/helixlabs/helixmarket/internal/ledger"
)

// historyLimit caps the per-proposal price sample ring. Old samples beyond
// the trigger window are only needed for charting, so the cap is generous.
const historyLimit = 2048

// Config carries the engine's market parameters.
type Config struct {
	// Rate is the versioned NATIVE->TOKEN conversion used for pricing.
	Rate domain.ConversionRate
	// CloseTimeout closes a resolved proposal after this much time even if
	// some holders never claim. Zero disables the timeout sweep.
	CloseTimeout time.Duration
}

// entry pairs a proposal with its single-writer lock. All mutating
// operations on one proposal serialize on this mutex; operations on
// different proposals proceed in parallel.
type entry struct {
	mu sync.Mutex
	p  *domain.Proposal
}

// Registry owns the collection of proposals, assigns identifiers, and routes
// every inbound operation by id.
type Registry struct {
	mu        sync.RWMutex
	proposals map[int64]*entry
	nextID    int64

	cfg     Config
	ledger  *ledger.Ledger
	oracle  domain.OracleGateway
	trigger domain.TriggerPolicy
	store   domain.ProposalStore // optional write-through persistence
	sink    domain.EventSink
	logger  *slog.Logger
	now     func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryStore enables write-through persistence of proposal snapshots.
func WithRegistryStore(store domain.ProposalStore) RegistryOption {
	return func(r *Registry) { r.store = store }
}

// WithRegistryClock overrides the time source. Used by tests.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a Registry. The oracle verifies resolution
// attestations; the trigger decides funding release; committed mutations are
// emitted to sink.
func NewRegistry(
	cfg Config,
	lg *ledger.Ledger,
	oracle domain.OracleGateway,
	trigger domain.TriggerPolicy,
	sink domain.EventSink,
	logger *slog.Logger,
	opts ...RegistryOption,
) *Registry {
	if sink == nil {
		sink = domain.NopSink
	}
	r := &Registry{
		proposals: make(map[int64]*entry),
		cfg:       cfg,
		ledger:    lg,
		oracle:    oracle,
		trigger:   trigger,
		sink:      sink,
		logger:    logger.With(slog.String("component", "registry")),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load restores previously persisted proposals into the registry. Called
// once at startup, before the registry is shared.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	proposals, err := r.store.List(ctx, domain.ListOpts{})
	if err != nil {
		return fmt.Errorf("engine: load proposals: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range proposals {
		r.proposals[p.ID] = &entry{p: p}
		if p.ID >= r.nextID {
			r.nextID = p.ID + 1
		}
	}
	r.logger.InfoContext(ctx, "proposals loaded", slog.Int("count", len(proposals)))
	return nil
}

// CreateRequest carries the caller-supplied proposal metadata.
type CreateRequest struct {
	Title      string
	Researcher domain.Account
	AuditURL   string

	Description string
	TrustScore  int

	// IdentityToken is the researcher's out-of-band identity marker; any
	// buyer presenting the same token is treated as an insider.
	IdentityToken string

	FundingTarget domain.CurrencyAmount

	// SeedYes/SeedNo are optional virtual reserves (token units) that set
	// the opening price. Seed liquidity is pricing state only; it is not
	// claimable and never enters the treasury.
	SeedYes int64
	SeedNo  int64
}

// CreateProposal registers a new proposal and returns it.
func (r *Registry) CreateProposal(ctx context.Context, req CreateRequest) (*domain.Proposal, error) {
	if req.Title == "" || req.Researcher == "" {
		return nil, fmt.Errorf("engine: create proposal: title and researcher required: %w", domain.ErrInvalidAmount)
	}
	if req.SeedYes < 0 || req.SeedNo < 0 {
		return nil, fmt.Errorf("engine: create proposal: negative seed reserve: %w", domain.ErrInvalidAmount)
	}
	if req.FundingTarget.Currency == "" {
		req.FundingTarget.Currency = domain.CurrencyNative
	}
	if err := req.FundingTarget.Validate(); err != nil {
		return nil, fmt.Errorf("engine: create proposal: funding target: %w", err)
	}

	now := r.now()
	p := &domain.Proposal{
		Title:              req.Title,
		Researcher:         req.Researcher,
		AuditURL:           req.AuditURL,
		Description:        req.Description,
		TrustScore:         req.TrustScore,
		ResearcherIdentity: req.IdentityToken,
		State:              domain.StateCreated,
		Pool: domain.OutcomePool{
			Yes: domain.Reserve{Token: req.SeedYes},
			No:  domain.Reserve{Token: req.SeedNo},
		},
		FundingTarget: req.FundingTarget,
		Positions:     make(map[domain.Account]*domain.Position),
		Claimed:       make(map[domain.Account]bool),
		CreatedAt:     now,
	}

	r.mu.Lock()
	p.ID = r.nextID
	r.nextID++
	r.proposals[p.ID] = &entry{p: p}
	r.mu.Unlock()

	r.recordSample(p, now)
	r.persist(ctx, p)
	r.sink.Emit(ctx, domain.Event{
		ID:         uuid.NewString(),
		Type:       domain.EventProposalCreated,
		ProposalID: p.ID,
		Account:    p.Researcher,
		Detail:     map[string]any{"title": p.Title, "audit_url": p.AuditURL},
		At:         now,
	})
	r.logger.InfoContext(ctx, "proposal created",
		slog.Int64("proposal_id", p.ID),
		slog.String("researcher", string(p.Researcher)),
	)
	return snapshot(p), nil
}

// Get returns a copy of the proposal with the given id.
func (r *Registry) Get(_ context.Context, id int64) (*domain.Proposal, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.p), nil
}

// List returns copies of all proposals ordered by id.
func (r *Registry) List(_ context.Context, opts domain.ListOpts) ([]*domain.Proposal, error) {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.proposals))
	for _, e := range r.proposals {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].p.ID < entries[j].p.ID })

	if opts.Offset > 0 {
		if opts.Offset >= len(entries) {
			return nil, nil
		}
		entries = entries[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(entries) {
		entries = entries[:opts.Limit]
	}

	out := make([]*domain.Proposal, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, snapshot(e.p))
		e.mu.Unlock()
	}
	return out, nil
}

// History returns a copy of the proposal's sampled price history.
func (r *Registry) History(_ context.Context, id int64) ([]domain.PricePoint, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.PricePoint, len(e.p.History))
	copy(out, e.p.History)
	return out, nil
}

// MarketAccount is the ledger account holding a proposal's treasury.
func MarketAccount(id int64) domain.Account {
	return domain.Account(fmt.Sprintf("market:%d", id))
}

func (r *Registry) lookup(id int64) (*entry, error) {
	r.mu.RLock()
	e, ok := r.proposals[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("engine: proposal %d: %w", id, domain.ErrProposalNotFound)
	}
	return e, nil
}

// recordSample appends the current ratio prices to the proposal history.
// Caller holds the proposal lock (or exclusive ownership at creation).
func (r *Registry) recordSample(p *domain.Proposal, at time.Time) {
	p.History = append(p.History, domain.PricePoint{
		Time:     at,
		PriceYes: Price(p.Pool, domain.SideYes, r.cfg.Rate),
		PriceNo:  Price(p.Pool, domain.SideNo, r.cfg.Rate),
	})
	if len(p.History) > historyLimit {
		p.History = p.History[len(p.History)-historyLimit:]
	}
}

// persist writes through the proposal snapshot. Persistence failures are
// logged, not propagated: the in-memory registry is authoritative.
func (r *Registry) persist(ctx context.Context, p *domain.Proposal) {
	if r.store == nil {
		return
	}
	if err := r.store.Save(ctx, p); err != nil {
		r.logger.WarnContext(ctx, "proposal persist failed",
			slog.Int64("proposal_id", p.ID),
			slog.String("error", err.Error()),
		)
	}
}

// snapshot deep-copies the mutable parts of a proposal so callers can read
// it without holding the entry lock.
func snapshot(p *domain.Proposal) *domain.Proposal {
	cp := *p
	cp.Positions = make(map[domain.Account]*domain.Position, len(p.Positions))
	for a, pos := range p.Positions {
		posCopy := *pos
		cp.Positions[a] = &posCopy
	}
	cp.Claimed = make(map[domain.Account]bool, len(p.Claimed))
	for a, c := range p.Claimed {
		cp.Claimed[a] = c
	}
	cp.History = make([]domain.PricePoint, len(p.History))
	copy(cp.History, p.History)
	if p.Settlement != nil {
		s := *p.Settlement
		cp.Settlement = &s
	}
	if p.ResolutionProof != nil {
		cp.ResolutionProof = append([]byte(nil), p.ResolutionProof...)
	}
	return &cp
}
