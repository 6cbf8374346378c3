package search

import (
	"context"
	"time"

	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/auth"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/lead"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/logger"
)

// Indexer can push leads into a search index.
type Indexer interface {
	IndexLead(rec LeadRecord) error
	IndexLeads(records []LeadRecord) error
}

// engine is what the service needs from Meilisearch.
type engine interface {
	Searcher
	Indexer
}

// Service is the facade that tries Meilisearch first and falls back to a
// partition scan.
type Service struct {
	meili engine
	scan  *Scanner
	log   logger.Logger
	now   func() time.Time
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, scan *Scanner, log logger.Logger) *Service {
	s := &Service{scan: scan, log: log, now: time.Now}
	if meili != nil {
		s.meili = meili
	}
	return s
}

func (s *Service) Search(ctx context.Context, admin auth.Admin, q Query) (Response, error) {
	if err := auth.Require(admin, s.now()); err != nil {
		return Response{}, err
	}
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: "meilisearch"}, nil
		}
		s.log.Warn("meilisearch error, falling back to scan", map[string]interface{}{"error": err})
	}

	results, total, err := s.scan.Search(ctx, admin, q)
	if err != nil {
		return Response{}, err
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: "scan"}, nil
}

// LeadSaved indexes a lead (fire-and-forget to Meilisearch).
func (s *Service) LeadSaved(_ context.Context, l lead.Lead) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	rec := RecordFromLead(l)
	go func() {
		if err := s.meili.IndexLead(rec); err != nil {
			s.log.Warn("index lead failed", map[string]interface{}{"lead_id": rec.ID, "error": err})
		}
	}()
}

// Reindex pushes leads into Meilisearch in one batch. Used at startup to
// backfill the recent partitions.
func (s *Service) Reindex(leads []lead.Lead) {
	if s.meili == nil || !s.meili.Healthy() || len(leads) == 0 {
		return
	}
	records := make([]LeadRecord, 0, len(leads))
	for _, l := range leads {
		records = append(records, RecordFromLead(l))
	}
	if err := s.meili.IndexLeads(records); err != nil {
		s.log.Warn("reindex leads failed", map[string]interface{}{"count": len(records), "error": err})
		return
	}
	s.log.Info("reindexed leads", map[string]interface{}{"count": len(records)})
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
