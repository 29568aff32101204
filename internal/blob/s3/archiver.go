package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/helixlabs/helixmarket/internal/domain"
)

// Archiver uploads closed proposals and their event logs to the object store.
// Each proposal becomes one JSON document plus one JSONL event file, both
// keyed by proposal id. Deletion from the primary store is intentionally NOT
// performed here; the archive is additive.
type Archiver struct {
	writer    *Writer
	proposals domain.ProposalStore
	events    domain.EventStore
}

// NewArchiver creates an Archiver over the given stores.
func NewArchiver(writer *Writer, proposals domain.ProposalStore, events domain.EventStore) *Archiver {
	return &Archiver{writer: writer, proposals: proposals, events: events}
}

// ArchiveClosed uploads every closed proposal together with its full event
// history. It returns the number of proposals archived. Individual upload
// failures abort the run so the sweep can retry the whole batch later.
func (a *Archiver) ArchiveClosed(ctx context.Context) (int64, error) {
	all, err := a.proposals.List(ctx, domain.ListOpts{})
	if err != nil {
		return 0, fmt.Errorf("s3blob: list proposals: %w", err)
	}

	var count int64
	for _, p := range all {
		if p.State != domain.StateClosed {
			continue
		}
		if err := a.archiveOne(ctx, p); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (a *Archiver) archiveOne(ctx context.Context, p *domain.Proposal) error {
	doc, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal proposal %d: %w", p.ID, err)
	}
	if err := a.writer.Put(ctx, proposalPath(p), bytes.NewReader(doc), "application/json"); err != nil {
		return fmt.Errorf("s3blob: upload proposal %d: %w", p.ID, err)
	}

	events, err := a.events.ListByProposal(ctx, p.ID, domain.ListOpts{})
	if err != nil {
		return fmt.Errorf("s3blob: list events for proposal %d: %w", p.ID, err)
	}
	if len(events) == 0 {
		return nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return fmt.Errorf("s3blob: marshal events for proposal %d: %w", p.ID, err)
	}
	if err := a.writer.Put(ctx, eventsPath(p), bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: upload events for proposal %d: %w", p.ID, err)
	}
	return nil
}

// proposalPath partitions archives by the year-month the proposal closed in.
//
//	archive/proposals/2026-09/42.json
//	archive/events/2026-09/42.jsonl
func proposalPath(p *domain.Proposal) string {
	return fmt.Sprintf("archive/proposals/%s/%d.json", closedMonth(p), p.ID)
}

func eventsPath(p *domain.Proposal) string {
	return fmt.Sprintf("archive/events/%s/%d.jsonl", closedMonth(p), p.ID)
}

func closedMonth(p *domain.Proposal) string {
	t := p.CreatedAt
	if p.ClosedAt != nil {
		t = *p.ClosedAt
	}
	return t.Format("2006-01")
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
