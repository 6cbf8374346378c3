// Package leadstore persists leads as one JSON object per lead, partitioned by
// creation month.
package leadstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/auth"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/lead"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/logger"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/metrics"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/objectstore"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/util"
)

var (
	ErrNotFound           = errors.New("lead not found")
	ErrLicenseNotFound    = errors.New("no license on file")
	ErrInvalidPartition   = errors.New("invalid year or month")
	ErrUnsupportedLicense = errors.New("unsupported license file type")
)

const (
	// MaxRangeMonths bounds how far back a single listing may walk.
	MaxRangeMonths = 24
	fetchWorkers   = 8
)

// LicenseUpload is an optional driver's licence image attached to a submission.
type LicenseUpload struct {
	Data        []byte
	ContentType string
}

// Observer is told about every lead the repository writes.
type Observer interface {
	LeadSaved(ctx context.Context, l lead.Lead)
}

// Repository is the only writer of lead objects. Updates are read-modify-write
// with no version check: concurrent edits to one lead are last-write-wins.
type Repository struct {
	store     objectstore.Store
	log       logger.Logger
	observers []Observer
	now       func() time.Time
	newID     func() string
}

func NewRepository(store objectstore.Store, log logger.Logger) *Repository {
	return &Repository{
		store: store,
		log:   log.WithFields(map[string]interface{}{"component": "leadstore"}),
		now:   time.Now,
		newID: func() string { return util.NewID("") },
	}
}

// Observe registers o for write notifications. Not safe to call concurrently
// with writes.
func (r *Repository) Observe(o Observer) {
	r.observers = append(r.observers, o)
}

// WithClock overrides the time source. Tests only.
func (r *Repository) WithClock(now func() time.Time) *Repository {
	r.now = now
	return r
}

// CreateLead validates and stores a new submission. A licence, when present,
// is written first; if that write fails no lead is stored.
func (r *Repository) CreateLead(ctx context.Context, form lead.FormData, license *LicenseUpload) (lead.Lead, error) {
	now := r.now().UTC()
	form = form.Trimmed()
	if err := lead.ValidateForm(form, now); err != nil {
		return lead.Lead{}, err
	}

	l := lead.New(r.newID(), form, now)

	if license != nil && len(license.Data) > 0 {
		key, ok := LicenseKey(l.ID, license.ContentType)
		if !ok {
			return lead.Lead{}, ErrUnsupportedLicense
		}
		if err := r.store.PutObject(ctx, key, license.Data, normalizeContentType(license.ContentType)); err != nil {
			metrics.RecordStorageError("put")
			r.log.Error("store license failed", map[string]interface{}{"key": key, "error": err})
			return lead.Lead{}, fmt.Errorf("store license %s: %w", key, err)
		}
		l.DriversLicenseKey = key
	}

	if err := r.put(ctx, l); err != nil {
		return lead.Lead{}, err
	}
	metrics.RecordLeadCreated(l.HasLicense())
	r.log.Info("lead created", map[string]interface{}{"lead_id": l.ID, "month": l.MonthYear, "license": l.HasLicense()})
	r.notify(ctx, l)
	return l, nil
}

// ListLeadsByMonth returns one partition, newest first. Objects that cannot be
// read or parsed are logged and skipped.
func (r *Repository) ListLeadsByMonth(ctx context.Context, admin auth.Admin, year, month int) ([]lead.Lead, error) {
	if err := auth.Require(admin, r.now()); err != nil {
		return nil, err
	}
	if err := checkPartition(year, month); err != nil {
		return nil, err
	}
	leads, err := r.listPartition(ctx, year, month)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(leads)
	return leads, nil
}

// ListLeadsAcrossMonths walks rangeMonths partitions backwards from
// (year, month). Results are de-duplicated by id and sorted newest first.
// rangeMonths is clamped to [1, MaxRangeMonths].
func (r *Repository) ListLeadsAcrossMonths(ctx context.Context, admin auth.Admin, year, month, rangeMonths int) ([]lead.Lead, error) {
	if err := auth.Require(admin, r.now()); err != nil {
		return nil, err
	}
	if err := checkPartition(year, month); err != nil {
		return nil, err
	}
	rangeMonths = ClampRange(rangeMonths)

	seen := map[string]bool{}
	out := []lead.Lead{}
	for i := 0; i < rangeMonths; i++ {
		y, m := ShiftMonth(year, month, -i)
		leads, err := r.listPartition(ctx, y, m)
		if err != nil {
			return nil, err
		}
		for _, l := range leads {
			if seen[l.ID] {
				continue
			}
			seen[l.ID] = true
			out = append(out, l)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// GetLead loads a single lead from its partition.
func (r *Repository) GetLead(ctx context.Context, admin auth.Admin, id string, year, month int) (lead.Lead, error) {
	if err := auth.Require(admin, r.now()); err != nil {
		return lead.Lead{}, err
	}
	l, _, err := r.load(ctx, id, year, month)
	return l, err
}

// UpdateLead applies u to the lead and overwrites its object. Rejected updates
// write nothing.
func (r *Repository) UpdateLead(ctx context.Context, admin auth.Admin, id string, year, month int, u lead.Update) (lead.Lead, error) {
	if err := auth.Require(admin, r.now()); err != nil {
		return lead.Lead{}, err
	}
	if u.Empty() {
		return lead.Lead{}, lead.ErrEmptyUpdate
	}
	current, key, err := r.load(ctx, id, year, month)
	if err != nil {
		metrics.RecordLeadUpdate("not_loaded")
		return lead.Lead{}, err
	}

	updated, err := lead.Apply(current, u, r.now())
	if err != nil {
		metrics.RecordLeadUpdate("rejected")
		return lead.Lead{}, err
	}

	data, err := json.Marshal(updated)
	if err != nil {
		return lead.Lead{}, fmt.Errorf("encode lead %s: %w", id, err)
	}
	if err := r.store.PutObject(ctx, key, data, "application/json"); err != nil {
		metrics.RecordStorageError("put")
		metrics.RecordLeadUpdate("failed")
		r.log.Error("write lead failed", map[string]interface{}{"key": key, "error": err})
		return lead.Lead{}, fmt.Errorf("write lead %s: %w", key, err)
	}
	metrics.RecordLeadUpdate("applied")
	r.log.Info("lead updated", map[string]interface{}{
		"lead_id":    id,
		"admin":      admin.Subject,
		"status":     updated.Status,
		"history":    len(updated.StatusHistory),
		"interacted": u.Interaction != nil,
	})
	r.notify(ctx, updated)
	return updated, nil
}

// LicenseURL signs a short-lived read URL for the lead's licence upload.
func (r *Repository) LicenseURL(ctx context.Context, admin auth.Admin, l lead.Lead, ttl time.Duration) (string, error) {
	if err := auth.Require(admin, r.now()); err != nil {
		return "", err
	}
	if !l.HasLicense() {
		return "", ErrLicenseNotFound
	}
	u, err := r.store.SignedReadURL(ctx, l.DriversLicenseKey, ttl)
	if err != nil {
		metrics.RecordStorageError("sign")
		return "", fmt.Errorf("sign license %s: %w", l.DriversLicenseKey, err)
	}
	return u, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

// ClampRange bounds a requested month range to [1, MaxRangeMonths].
func ClampRange(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxRangeMonths {
		return MaxRangeMonths
	}
	return n
}

func (r *Repository) put(ctx context.Context, l lead.Lead) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encode lead %s: %w", l.ID, err)
	}
	key := LeadKey(l)
	if err := r.store.PutObject(ctx, key, data, "application/json"); err != nil {
		metrics.RecordStorageError("put")
		r.log.Error("write lead failed", map[string]interface{}{"key": key, "error": err})
		return fmt.Errorf("write lead %s: %w", key, err)
	}
	return nil
}

// load finds a lead by id within one partition.
func (r *Repository) load(ctx context.Context, id string, year, month int) (lead.Lead, string, error) {
	if err := checkPartition(year, month); err != nil {
		return lead.Lead{}, "", err
	}
	if id == "" || strings.ContainsAny(id, "/.") {
		return lead.Lead{}, "", ErrNotFound
	}
	keys, err := r.listKeys(ctx, PartitionPrefix(year, month))
	if err != nil {
		return lead.Lead{}, "", err
	}
	key := ""
	for _, k := range keys {
		if keyMatchesID(k, id) {
			key = k
			break
		}
	}
	if key == "" {
		return lead.Lead{}, "", ErrNotFound
	}

	data, err := r.store.GetObject(ctx, key)
	if errors.Is(err, objectstore.ErrNotFound) {
		return lead.Lead{}, "", ErrNotFound
	}
	if err != nil {
		metrics.RecordStorageError("get")
		r.log.Error("read lead failed", map[string]interface{}{"key": key, "error": err})
		return lead.Lead{}, "", fmt.Errorf("read lead %s: %w", key, err)
	}
	l, err := decode(data)
	if err != nil {
		r.log.Error("decode lead failed", map[string]interface{}{"key": key, "error": err})
		return lead.Lead{}, "", fmt.Errorf("decode lead %s: %w", key, err)
	}
	return l, key, nil
}

func (r *Repository) listKeys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := r.store.ListKeys(ctx, prefix)
	if err != nil {
		metrics.RecordStorageError("list")
		r.log.Error("list leads failed", map[string]interface{}{"prefix": prefix, "error": err})
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	out := keys[:0]
	for _, k := range keys {
		if strings.HasSuffix(k, ".json") {
			out = append(out, k)
		}
	}
	return out, nil
}

func (r *Repository) listPartition(ctx context.Context, year, month int) ([]lead.Lead, error) {
	keys, err := r.listKeys(ctx, PartitionPrefix(year, month))
	if err != nil {
		return nil, err
	}

	results := make([]*lead.Lead, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchWorkers)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			data, err := r.store.GetObject(gctx, key)
			if err != nil {
				metrics.LeadsSkipped.Inc()
				r.log.Warn("skipping unreadable lead", map[string]interface{}{"key": key, "error": err})
				return nil
			}
			l, err := decode(data)
			if err != nil {
				metrics.LeadsSkipped.Inc()
				r.log.Warn("skipping unparsable lead", map[string]interface{}{"key": key, "error": err})
				return nil
			}
			results[i] = &l
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	leads := make([]lead.Lead, 0, len(results))
	for _, l := range results {
		if l != nil {
			leads = append(leads, *l)
		}
	}
	return leads, nil
}

func (r *Repository) notify(ctx context.Context, l lead.Lead) {
	for _, o := range r.observers {
		o.LeadSaved(ctx, l)
	}
}

func decode(data []byte) (lead.Lead, error) {
	var l lead.Lead
	if err := json.Unmarshal(data, &l); err != nil {
		return lead.Lead{}, err
	}
	if l.ID == "" {
		return lead.Lead{}, errors.New("lead has no id")
	}
	l.Normalize()
	return l, nil
}

func checkPartition(year, month int) error {
	if month < 1 || month > 12 || year < 2000 || year > 9999 {
		return ErrInvalidPartition
	}
	return nil
}

func sortNewestFirst(leads []lead.Lead) {
	sort.SliceStable(leads, func(i, j int) bool {
		return leads[i].CreatedAt.After(leads[j].CreatedAt)
	})
}
