package leadstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/auth"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/lead"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/logger/loggertest"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/objectstore"
)

var testAdmin = auth.Admin{Subject: "admin", Name: "Dana", SessionID: "sess_test"}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestRepo(t *testing.T) (*Repository, *objectstore.MemoryStore, *clock) {
	t.Helper()
	store := objectstore.NewMemoryStore()
	clk := &clock{now: time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)}
	repo := NewRepository(store, loggertest.New(t)).WithClock(clk.Now)
	return repo, store, clk
}

func financeForm() lead.FormData {
	return lead.FormData{
		Urgency:          "few-weeks",
		VehicleType:      "sedan",
		PaymentType:      "finance",
		FinanceBudget:    "400-500",
		CreditRating:     "fair",
		TradeIn:          "unsure",
		TradeInYear:      "2016",
		TradeInMake:      "Toyota",
		TradeInModel:     "Corolla",
		FullName:         "Priya Patel",
		Phone:            "905-555-0142",
		Email:            "priya@example.com",
		DateOfBirth:      "1988-11-02",
		BestTimeToReach:  "afternoon",
		LicenseClass:     "g2",
		Cosigner:         "yes",
		CosignerFullName: "Raj Patel",
		CosignerPhone:    "905-555-0143",
		CosignerEmail:    "raj@example.com",
	}
}

func statusPtr(s lead.Status) *lead.Status         { return &s }
func reasonPtr(r lead.DeadReason) *lead.DeadReason { return &r }
func strPtr(s string) *string                      { return &s }

func TestCreateThenListRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, store, _ := newTestRepo(t)

	created, err := repo.CreateLead(ctx, financeForm(), nil)
	require.NoError(t, err)
	assert.Equal(t, lead.StatusNew, created.Status)
	assert.Equal(t, "2024-03", created.MonthYear)
	assert.False(t, created.HasLicense())

	keys := store.Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, fmt.Sprintf("leads/2024/03/%d-%s.json", created.CreatedAt.UnixMilli(), created.ID), keys[0])

	leads, err := repo.ListLeadsByMonth(ctx, testAdmin, 2024, 3)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, financeForm(), leads[0].FormData)
	assert.Equal(t, lead.StatusNew, leads[0].Status)
	assert.Equal(t, created.ID, leads[0].ID)
}

func TestCreateRejectsInvalidFormWithoutWriting(t *testing.T) {
	ctx := context.Background()
	repo, store, _ := newTestRepo(t)

	form := financeForm()
	form.CreditRating = ""
	_, err := repo.CreateLead(ctx, form, &LicenseUpload{Data: []byte("img"), ContentType: "image/png"})

	var verr *lead.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("creditRating"))
	assert.Empty(t, store.Keys())
}

func TestCreateStoresLicenseBeforeLead(t *testing.T) {
	ctx := context.Background()
	repo, store, _ := newTestRepo(t)

	created, err := repo.CreateLead(ctx, financeForm(), &LicenseUpload{Data: []byte{0xff, 0xd8}, ContentType: "image/jpeg"})
	require.NoError(t, err)
	assert.Equal(t, "drivers-licenses/"+created.ID+".jpg", created.DriversLicenseKey)

	ct, ok := store.ContentType(created.DriversLicenseKey)
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", ct)

	url, err := repo.LicenseURL(ctx, testAdmin, created, time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, url)
}

func TestCreateFailsWholeWhenLicenseUploadFails(t *testing.T) {
	ctx := context.Background()
	repo, store, _ := newTestRepo(t)
	store.FailOn("put", objectstore.ErrUnavailable)

	_, err := repo.CreateLead(ctx, financeForm(), &LicenseUpload{Data: []byte("pdf"), ContentType: "application/pdf"})
	assert.ErrorIs(t, err, objectstore.ErrUnavailable)

	store.FailOn("put", nil)
	assert.Empty(t, store.Keys())
}

func TestCreateRejectsUnsupportedLicenseType(t *testing.T) {
	repo, store, _ := newTestRepo(t)
	_, err := repo.CreateLead(context.Background(), financeForm(), &LicenseUpload{Data: []byte("x"), ContentType: "text/html"})
	assert.ErrorIs(t, err, ErrUnsupportedLicense)
	assert.Empty(t, store.Keys())
}

func TestLicenseURLWithoutUpload(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	created, err := repo.CreateLead(context.Background(), financeForm(), nil)
	require.NoError(t, err)

	_, err = repo.LicenseURL(context.Background(), testAdmin, created, time.Minute)
	assert.ErrorIs(t, err, ErrLicenseNotFound)
}

func TestUpdateDeadWithReason(t *testing.T) {
	ctx := context.Background()
	repo, _, clk := newTestRepo(t)

	created, err := repo.CreateLead(ctx, financeForm(), nil)
	require.NoError(t, err)

	clk.Set(clk.Now().Add(3 * 24 * time.Hour))
	updated, err := repo.UpdateLead(ctx, testAdmin, created.ID, 2024, 3, lead.Update{
		Status:     statusPtr(lead.StatusDead),
		DeadReason: reasonPtr(lead.DeadDeclined),
	})
	require.NoError(t, err)
	assert.Equal(t, lead.StatusDead, updated.Status)
	assert.Equal(t, lead.DeadDeclined, updated.DeadReason)
	require.NotNil(t, updated.ClosedAt)
	assert.Len(t, updated.StatusHistory, 2)

	stored, err := repo.GetLead(ctx, testAdmin, created.ID, 2024, 3)
	require.NoError(t, err)
	assert.Equal(t, updated.Status, stored.Status)
	assert.Len(t, stored.StatusHistory, 2)
}

func TestSequentialUpdatesDoNotClobber(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newTestRepo(t)

	created, err := repo.CreateLead(ctx, financeForm(), nil)
	require.NoError(t, err)

	_, err = repo.UpdateLead(ctx, testAdmin, created.ID, 2024, 3, lead.Update{Notes: strPtr("A")})
	require.NoError(t, err)
	_, err = repo.UpdateLead(ctx, testAdmin, created.ID, 2024, 3, lead.Update{Status: statusPtr(lead.StatusWorking)})
	require.NoError(t, err)

	final, err := repo.GetLead(ctx, testAdmin, created.ID, 2024, 3)
	require.NoError(t, err)
	assert.Equal(t, "A", final.Notes)
	assert.Equal(t, lead.StatusWorking, final.Status)
}

func TestUpdateRejectedLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	repo, store, _ := newTestRepo(t)
	created, err := repo.CreateLead(ctx, financeForm(), nil)
	require.NoError(t, err)
	key := LeadKey(created)
	before, err := store.GetObject(ctx, key)
	require.NoError(t, err)

	_, err = repo.UpdateLead(ctx, testAdmin, created.ID, 2024, 3, lead.Update{
		Notes:       strPtr("should not land"),
		Interaction: &lead.InteractionInput{Type: "carrier-pigeon"},
	})
	assert.ErrorIs(t, err, lead.ErrInvalidInteractionType)

	after, err := store.GetObject(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestUpdateNotFound(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newTestRepo(t)
	created, err := repo.CreateLead(ctx, financeForm(), nil)
	require.NoError(t, err)

	tests := []struct {
		name  string
		id    string
		month int
	}{
		{"unknown id", "does-not-exist", 3},
		{"wrong partition", created.ID, 2},
		{"id prefix only", created.ID[:8], 3},
		{"path traversal", "../03/x", 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := repo.UpdateLead(ctx, testAdmin, tc.id, 2024, tc.month, lead.Update{Notes: strPtr("x")})
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestUpdateEmpty(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	_, err := repo.UpdateLead(context.Background(), testAdmin, "x", 2024, 3, lead.Update{})
	assert.ErrorIs(t, err, lead.ErrEmptyUpdate)
}

func TestPrivilegedOperationsRequireAdmin(t *testing.T) {
	ctx := context.Background()
	repo, _, clk := newTestRepo(t)
	created, err := repo.CreateLead(ctx, financeForm(), nil)
	require.NoError(t, err)

	expired := auth.Admin{Subject: "admin", ExpiresAt: clk.Now().Add(-time.Second)}
	for _, admin := range []auth.Admin{{}, expired} {
		_, err = repo.ListLeadsByMonth(ctx, admin, 2024, 3)
		assert.ErrorIs(t, err, auth.ErrUnauthorized)
		_, err = repo.ListLeadsAcrossMonths(ctx, admin, 2024, 3, 2)
		assert.ErrorIs(t, err, auth.ErrUnauthorized)
		_, err = repo.UpdateLead(ctx, admin, created.ID, 2024, 3, lead.Update{Notes: strPtr("x")})
		assert.ErrorIs(t, err, auth.ErrUnauthorized)
		_, err = repo.GetLead(ctx, admin, created.ID, 2024, 3)
		assert.ErrorIs(t, err, auth.ErrUnauthorized)
		_, err = repo.LicenseURL(ctx, admin, created, time.Minute)
		assert.ErrorIs(t, err, auth.ErrUnauthorized)
	}
}

func TestListSortsNewestFirstAndSkipsCorrupt(t *testing.T) {
	ctx := context.Background()
	repo, store, clk := newTestRepo(t)

	var ids []string
	for i := 0; i < 5; i++ {
		clk.Set(time.Date(2024, 3, 1+i, 10, 0, 0, 0, time.UTC))
		l, err := repo.CreateLead(ctx, financeForm(), nil)
		require.NoError(t, err)
		ids = append(ids, l.ID)
	}
	require.NoError(t, store.PutObject(ctx, "leads/2024/03/1709900000000-broken.json", []byte("{not json"), "application/json"))
	require.NoError(t, store.PutObject(ctx, "leads/2024/03/readme.txt", []byte("ignored"), "text/plain"))

	leads, err := repo.ListLeadsByMonth(ctx, testAdmin, 2024, 3)
	require.NoError(t, err)
	require.Len(t, leads, 5)
	for i, l := range leads {
		assert.Equal(t, ids[len(ids)-1-i], l.ID)
	}
}

func TestListSurfacesListFailure(t *testing.T) {
	repo, store, _ := newTestRepo(t)
	store.FailOn("list", objectstore.ErrUnavailable)

	_, err := repo.ListLeadsByMonth(context.Background(), testAdmin, 2024, 3)
	assert.ErrorIs(t, err, objectstore.ErrUnavailable)
}

func TestListEmptyPartition(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	leads, err := repo.ListLeadsByMonth(context.Background(), testAdmin, 2023, 7)
	require.NoError(t, err)
	assert.NotNil(t, leads)
	assert.Empty(t, leads)
}

func TestListRejectsBadPartition(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	_, err := repo.ListLeadsByMonth(context.Background(), testAdmin, 2024, 13)
	assert.ErrorIs(t, err, ErrInvalidPartition)
}

func TestListAcrossMonthsSkipsEmptyMonths(t *testing.T) {
	ctx := context.Background()
	repo, store, clk := newTestRepo(t)

	clk.Set(time.Date(2024, 1, 20, 9, 0, 0, 0, time.UTC))
	jan, err := repo.CreateLead(ctx, financeForm(), nil)
	require.NoError(t, err)
	clk.Set(time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC))
	mar, err := repo.CreateLead(ctx, financeForm(), nil)
	require.NoError(t, err)
	clk.Set(time.Date(2023, 12, 31, 9, 0, 0, 0, time.UTC))
	_, err = repo.CreateLead(ctx, financeForm(), nil)
	require.NoError(t, err)

	// a stray copy of the March lead under January must not duplicate it
	data, err := store.GetObject(ctx, LeadKey(mar))
	require.NoError(t, err)
	require.NoError(t, store.PutObject(ctx, "leads/2024/01/1-"+mar.ID+".json", data, "application/json"))

	clk.Set(time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC))
	leads, err := repo.ListLeadsAcrossMonths(ctx, testAdmin, 2024, 3, 3)
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, mar.ID, leads[0].ID)
	assert.Equal(t, jan.ID, leads[1].ID)
	for _, l := range leads {
		assert.NotEqual(t, "2024-02", l.MonthYear)
	}
}

func TestListAcrossMonthsCrossesYearBoundary(t *testing.T) {
	ctx := context.Background()
	repo, _, clk := newTestRepo(t)

	clk.Set(time.Date(2023, 11, 5, 9, 0, 0, 0, time.UTC))
	nov, err := repo.CreateLead(ctx, financeForm(), nil)
	require.NoError(t, err)

	clk.Set(time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC))
	leads, err := repo.ListLeadsAcrossMonths(ctx, testAdmin, 2024, 1, 3)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, nov.ID, leads[0].ID)

	leads, err = repo.ListLeadsAcrossMonths(ctx, testAdmin, 2024, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, leads)
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []lead.Lead
}

func (o *recordingObserver) LeadSaved(_ context.Context, l lead.Lead) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, l)
}

func TestObserversSeeCreatesAndUpdates(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newTestRepo(t)
	obs := &recordingObserver{}
	repo.Observe(obs)

	created, err := repo.CreateLead(ctx, financeForm(), nil)
	require.NoError(t, err)
	_, err = repo.UpdateLead(ctx, testAdmin, created.ID, 2024, 3, lead.Update{Status: statusPtr(lead.StatusWorking)})
	require.NoError(t, err)

	require.Len(t, obs.seen, 2)
	assert.Equal(t, lead.StatusNew, obs.seen[0].Status)
	assert.Equal(t, lead.StatusWorking, obs.seen[1].Status)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "leads/2024/03/", PartitionPrefix(2024, 3))

	key, ok := LicenseKey("abc", "image/PNG; charset=binary")
	assert.True(t, ok)
	assert.Equal(t, "drivers-licenses/abc.png", key)
	_, ok = LicenseKey("abc", "application/zip")
	assert.False(t, ok)

	y, m := ShiftMonth(2024, 1, -1)
	assert.Equal(t, []int{2023, 12}, []int{y, m})
	y, m = ShiftMonth(2024, 3, -14)
	assert.Equal(t, []int{2023, 1}, []int{y, m})

	assert.True(t, keyMatchesID("leads/2024/03/1-abc.json", "abc"))
	assert.False(t, keyMatchesID("leads/2024/03/1-xabc.json", "abc"))
	assert.False(t, strings.HasSuffix(PartitionPrefix(2024, 3), ".json"))

	assert.Equal(t, 1, ClampRange(-3))
	assert.Equal(t, MaxRangeMonths, ClampRange(100))
}
