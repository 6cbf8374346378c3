package app

import (
	"context"
	"fmt"
	"time"

	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/analytics"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/auth"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/authpw"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/email"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/lead"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/leadstore"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/logger"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/metrics"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/ratelimit"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/search"
)

// Pinger is a dependency that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps wires a Service. Leads, Guard and Verifier are required.
type Deps struct {
	Leads         *leadstore.Repository
	Guard         *auth.Guard
	Verifier      *authpw.Verifier
	SubmitLimiter ratelimit.Limiter
	LoginLimiter  ratelimit.Limiter
	Search        *search.Service
	Email         *email.Service
	Log           logger.Logger

	AdminName    string
	SignedURLTTL time.Duration
	Location     *time.Location
	// Checks are reported by /api/ready, keyed by dependency name.
	Checks map[string]Pinger
}

type Service struct {
	leads         *leadstore.Repository
	guard         *auth.Guard
	verifier      *authpw.Verifier
	submitLimiter ratelimit.Limiter
	loginLimiter  ratelimit.Limiter
	search        *search.Service
	email         *email.Service
	log           logger.Logger

	adminName    string
	signedURLTTL time.Duration
	location     *time.Location
	checks       map[string]Pinger
	now          func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		leads:         d.Leads,
		guard:         d.Guard,
		verifier:      d.Verifier,
		submitLimiter: d.SubmitLimiter,
		loginLimiter:  d.LoginLimiter,
		search:        d.Search,
		email:         d.Email,
		log:           d.Log,
		adminName:     d.AdminName,
		signedURLTTL:  d.SignedURLTTL,
		location:      d.Location,
		checks:        d.Checks,
		now:           time.Now,
	}
	if s.log == nil {
		s.log = logger.NewNoOpLogger()
	}
	if s.location == nil {
		s.location = time.UTC
	}
	if s.signedURLTTL <= 0 {
		s.signedURLTTL = 15 * time.Minute
	}
	if s.adminName == "" {
		s.adminName = "Admin"
	}
	if s.search == nil {
		s.search = search.NewService(nil, search.NewScanner(d.Leads), s.log)
	}
	return s
}

// Period selects the partitions a listing covers.
type Period struct {
	Year        int
	Month       int
	RangeMonths int
}

// DefaultPeriod is the current partition month. Partitions are keyed in UTC;
// the configured location only affects analytics bucketing.
func (s *Service) DefaultPeriod() Period {
	now := s.now().UTC()
	return Period{Year: now.Year(), Month: int(now.Month()), RangeMonths: 1}
}

func (s *Service) allow(ctx context.Context, limiter ratelimit.Limiter, scope, key string) error {
	if limiter == nil {
		return nil
	}
	d, err := limiter.Allow(ctx, key)
	if err != nil {
		// limits are best effort; never reject because the counter store failed
		s.log.Warn("rate limiter failed open", map[string]interface{}{"scope": scope, "error": err})
		return nil
	}
	if err := d.Err(); err != nil {
		metrics.RateLimited.WithLabelValues(scope).Inc()
		return err
	}
	return nil
}

// SubmitLead is the public application form.
func (s *Service) SubmitLead(ctx context.Context, clientKey string, form lead.FormData, license *leadstore.LicenseUpload) (lead.Lead, error) {
	if err := s.allow(ctx, s.submitLimiter, "submit", clientKey); err != nil {
		return lead.Lead{}, err
	}
	return s.leads.CreateLead(ctx, form, license)
}

// Login exchanges the shared admin password for a session token.
func (s *Service) Login(ctx context.Context, clientKey, password string) (string, auth.Admin, error) {
	if err := s.allow(ctx, s.loginLimiter, "login", clientKey); err != nil {
		return "", auth.Admin{}, err
	}
	if err := s.verifier.Verify(password); err != nil {
		metrics.LoginAttempts.WithLabelValues("rejected").Inc()
		s.log.Warn("admin login rejected", map[string]interface{}{"client": clientKey})
		return "", auth.Admin{}, err
	}
	token, admin, err := s.guard.Issue(ctx, "admin", s.adminName)
	if err != nil {
		return "", auth.Admin{}, err
	}
	metrics.LoginAttempts.WithLabelValues("accepted").Inc()
	s.log.Info("admin logged in", map[string]interface{}{"session": auth.HashToken(admin.SessionID)})
	return token, admin, nil
}

func (s *Service) Logout(ctx context.Context, admin auth.Admin) error {
	return s.guard.Revoke(ctx, admin)
}

func (s *Service) Authenticate(ctx context.Context, token string) (auth.Admin, error) {
	return s.guard.Authenticate(ctx, token)
}

func (s *Service) SessionTTL() time.Duration {
	return s.guard.TTL()
}

// ListLeads returns leads for the period, optionally filtered by status.
func (s *Service) ListLeads(ctx context.Context, admin auth.Admin, p Period, status lead.Status) ([]lead.Lead, error) {
	if status != "" && !status.Valid() {
		return nil, lead.ErrInvalidStatus
	}
	leads, err := s.leads.ListLeadsAcrossMonths(ctx, admin, p.Year, p.Month, p.RangeMonths)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return leads, nil
	}
	filtered := make([]lead.Lead, 0, len(leads))
	for _, l := range leads {
		if l.Status == status {
			filtered = append(filtered, l)
		}
	}
	return filtered, nil
}

func (s *Service) GetLead(ctx context.Context, admin auth.Admin, id string, year, month int) (lead.Lead, error) {
	return s.leads.GetLead(ctx, admin, id, year, month)
}

func (s *Service) UpdateLead(ctx context.Context, admin auth.Admin, id string, year, month int, u lead.Update) (lead.Lead, error) {
	return s.leads.UpdateLead(ctx, admin, id, year, month, u)
}

// LicenseURL returns a signed link to the lead's uploaded licence.
func (s *Service) LicenseURL(ctx context.Context, admin auth.Admin, id string, year, month int) (string, time.Time, error) {
	l, err := s.leads.GetLead(ctx, admin, id, year, month)
	if err != nil {
		return "", time.Time{}, err
	}
	expires := s.now().Add(s.signedURLTTL)
	u, err := s.leads.LicenseURL(ctx, admin, l, s.signedURLTTL)
	if err != nil {
		return "", time.Time{}, err
	}
	return u, expires, nil
}

func (s *Service) Analytics(ctx context.Context, admin auth.Admin, p Period, mode analytics.Mode) (analytics.Summary, error) {
	if !mode.Valid() {
		return analytics.Summary{}, domainError(400, "INVALID_BUCKET", "bucket must be weekly or monthly", nil)
	}
	leads, err := s.leads.ListLeadsAcrossMonths(ctx, admin, p.Year, p.Month, p.RangeMonths)
	if err != nil {
		return analytics.Summary{}, err
	}
	return analytics.Summarize(leads, mode, s.location), nil
}

func (s *Service) Search(ctx context.Context, admin auth.Admin, q search.Query) (search.Response, error) {
	if q.Status != "" && !q.Status.Valid() {
		return search.Response{}, lead.ErrInvalidStatus
	}
	return s.search.Search(ctx, admin, q)
}

func (s *Service) EmailTemplates(admin auth.Admin) ([]email.Template, error) {
	if err := auth.Require(admin, s.now()); err != nil {
		return nil, err
	}
	return email.Templates(), nil
}

// SendLeadEmail sends a canned template to the applicant and logs it as an
// email interaction on the lead.
func (s *Service) SendLeadEmail(ctx context.Context, admin auth.Admin, id string, year, month int, templateID string) (lead.Lead, error) {
	if s.email == nil {
		return lead.Lead{}, email.ErrNotConfigured
	}
	l, err := s.leads.GetLead(ctx, admin, id, year, month)
	if err != nil {
		return lead.Lead{}, err
	}
	tpl, err := s.email.SendTemplate(l.FormData.Email, templateID, email.TemplateData{
		FirstName:   l.FormData.FirstName(),
		FullName:    l.FormData.FullName,
		VehicleType: l.FormData.VehicleType,
		PaymentType: l.FormData.PaymentType,
	})
	if err != nil {
		metrics.EmailsSent.WithLabelValues(templateLabel(templateID), "failed").Inc()
		s.log.Error("send lead email failed", map[string]interface{}{"lead_id": id, "template": templateID, "error": err})
		return lead.Lead{}, err
	}
	metrics.EmailsSent.WithLabelValues(tpl.ID, "sent").Inc()

	return s.leads.UpdateLead(ctx, admin, id, year, month, lead.Update{
		Interaction: &lead.InteractionInput{
			Type: lead.InteractionEmail,
			Note: fmt.Sprintf("Sent template: %s", tpl.Name),
		},
	})
}

// templateLabel keeps the template metric label bounded to known ids.
func templateLabel(id string) string {
	if _, ok := email.Lookup(id); ok {
		return id
	}
	return "unknown"
}

// Readiness pings every registered dependency.
func (s *Service) Readiness(ctx context.Context) map[string]error {
	out := make(map[string]error, len(s.checks)+1)
	out["storage"] = s.leads.Ping(ctx)
	for name, p := range s.checks {
		out[name] = p.Ping(ctx)
	}
	return out
}

// BackfillSearch pushes the last months of leads into the search index.
func (s *Service) BackfillSearch(ctx context.Context, months int) error {
	system := auth.Admin{Subject: "system", Name: "search backfill"}
	p := s.DefaultPeriod()
	leads, err := s.leads.ListLeadsAcrossMonths(ctx, system, p.Year, p.Month, months)
	if err != nil {
		return err
	}
	s.search.Reindex(leads)
	return nil
}
