package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"

	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/lead"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/leadstore"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/logger"
)

const idxLeads = "leads"

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	log     logger.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a client and configures the lead index. An unreachable
// server is not an error: the health loop picks it up when it appears.
func NewMeili(url, apiKey string, log logger.Logger) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		log:    log.WithFields(map[string]interface{}{"component": "meilisearch"}),
		done:   make(chan struct{}),
	}

	if _, err := m.client.Health(); err != nil {
		m.log.Warn("meilisearch unavailable", map[string]interface{}{"url": url, "error": err})
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: idxLeads, PrimaryKey: "id"}); err != nil {
		m.log.Debug("create index (may already exist)", map[string]interface{}{"index": idxLeads, "error": err})
	}

	index := m.client.Index(idxLeads)
	filterable := []interface{}{"monthYear", "status"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.log.Warn("update filterable attributes", map[string]interface{}{"error": err})
	}
	searchable := []string{"fullName", "email", "phone", "phoneDigits", "cosignerFullName", "notes"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.log.Warn("update searchable attributes", map[string]interface{}{"error": err})
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.log.Info("meilisearch recovered, reconfiguring index", nil)
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(_ context.Context, q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 50
	}
	sr := &meili.SearchRequest{
		IndexUID:              idxLeads,
		Query:                 q.Text,
		Limit:                 limit,
		AttributesToHighlight: []string{"notes"},
		AttributesToCrop:      []string{"notes"},
		CropLength:            20,
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
	if filter := monthFilter(q); filter != "" {
		sr.Filter = filter
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: []*meili.SearchRequest{sr}})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	results := []Result{}
	total := 0
	for _, r := range resp.Results {
		total += int(r.EstimatedTotalHits)
		for _, hit := range r.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, total, nil
}

// monthFilter restricts hits to the searched partitions.
func monthFilter(q Query) string {
	var parts []string
	for i := 0; i < leadstore.ClampRange(q.RangeMonths); i++ {
		y, mo := leadstore.ShiftMonth(q.Year, q.Month, -i)
		parts = append(parts, fmt.Sprintf("monthYear = %q", fmt.Sprintf("%04d-%02d", y, mo)))
	}
	filter := strings.Join(parts, " OR ")
	if q.Status != "" {
		filter = fmt.Sprintf("(%s) AND status = %q", filter, q.Status)
	}
	return filter
}

func hitToResult(hit meili.Hit) Result {
	r := Result{
		ID:          decodeString(hit, "id"),
		FullName:    decodeString(hit, "fullName"),
		Email:       decodeString(hit, "email"),
		Phone:       decodeString(hit, "phone"),
		Status:      lead.Status(decodeString(hit, "status")),
		VehicleType: decodeString(hit, "vehicleType"),
		PaymentType: decodeString(hit, "paymentType"),
		MonthYear:   decodeString(hit, "monthYear"),
		Snippet:     decodeFormattedString(hit, "notes"),
	}
	if raw, ok := hit["createdAt"]; ok {
		var unix int64
		if err := json.Unmarshal(raw, &unix); err == nil {
			r.CreatedAt = time.Unix(unix, 0).UTC()
		}
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]json.RawMessage
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(formatted[key], &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// IndexLead adds or replaces one lead in the index.
func (m *Meili) IndexLead(rec LeadRecord) error {
	_, err := m.client.Index(idxLeads).AddDocuments([]LeadRecord{rec}, nil)
	return err
}

// IndexLeads bulk-indexes leads.
func (m *Meili) IndexLeads(records []LeadRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxLeads).AddDocuments(records, nil)
	return err
}
