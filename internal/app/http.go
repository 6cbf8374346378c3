package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/analytics"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/auth"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/lead"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/leadstore"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/logger"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/metrics"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/search"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/util"
)

const (
	sessionCookie = "admin_session"
	// maxUploadBytes bounds a submission including the licence image.
	maxUploadBytes = 10 << 20
)

type HTTPServer struct {
	service     *Service
	corsOrigins []string
	log         logger.Logger
	secure      bool
	trustProxy  bool
}

func NewHTTPServer(service *Service, corsOrigin string, log logger.Logger) *HTTPServer {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	origins := []string{}
	for _, o := range strings.Split(corsOrigin, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &HTTPServer{service: service, corsOrigins: origins, log: log}
}

// SecureCookies marks the session cookie Secure; enabled in production.
func (s *HTTPServer) SecureCookies(on bool) *HTTPServer {
	s.secure = on
	return s
}

// TrustProxy keys rate limits on the forwarded client address instead of
// the connection's peer. Forwarding headers are caller controlled otherwise.
func (s *HTTPServer) TrustProxy(on bool) *HTTPServer {
	s.trustProxy = on
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	if s.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(s.withMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(metrics.Middleware)

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Get("/api/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/api/meta", s.handleMeta)

	r.Post("/api/leads", s.handleSubmitLead)
	r.Post("/api/admin/login", s.handleLogin)
	r.Get("/api/admin/session", s.handleSession)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Post("/api/admin/logout", s.handleLogout)
		r.Get("/api/admin/leads", s.handleListLeads)
		r.Get("/api/admin/leads/{id}", s.handleGetLead)
		r.Patch("/api/admin/leads/{id}", s.handleUpdateLead)
		r.Get("/api/admin/leads/{id}/license", s.handleLicenseURL)
		r.Post("/api/admin/leads/{id}/email", s.handleSendEmail)
		r.Get("/api/admin/analytics", s.handleAnalytics)
		r.Get("/api/admin/search", s.handleSearch)
		r.Get("/api/admin/email-templates", s.handleEmailTemplates)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})
	return r
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{}
	for name, err := range s.service.Readiness(ctx) {
		if err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleMeta(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"statuses":         lead.Statuses,
		"deadReasons":      lead.DeadReasons,
		"interactionTypes": lead.InteractionTypes,
		"analyticsBuckets": []analytics.Mode{analytics.Weekly, analytics.Monthly},
		"maxRangeMonths":   leadstore.MaxRangeMonths,
	})
}

func (s *HTTPServer) handleSubmitLead(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	form, license, err := readSubmission(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Upload exceeds 10MB", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	created, err := s.service.SubmitLead(r.Context(), clientKey(r), form, license)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         created.ID,
		"hasLicense": created.HasLicense(),
	})
}

// readSubmission accepts either a JSON form body or a multipart body with a
// formData JSON field and an optional driversLicense file.
func readSubmission(r *http.Request) (lead.FormData, *leadstore.LicenseUpload, error) {
	var form lead.FormData
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := decodeBody(r, &form); err != nil {
			return form, nil, err
		}
		return form, nil, nil
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return form, nil, err
		}
		return form, nil, fmt.Errorf("invalid multipart body")
	}
	if err := json.Unmarshal([]byte(r.FormValue("formData")), &form); err != nil {
		return form, nil, fmt.Errorf("invalid formData field")
	}

	file, header, err := r.FormFile("driversLicense")
	if errors.Is(err, http.ErrMissingFile) {
		return form, nil, nil
	}
	if err != nil {
		return form, nil, fmt.Errorf("invalid driversLicense file")
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return form, nil, err
	}
	if len(data) == 0 {
		return form, nil, nil
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return form, &leadstore.LicenseUpload{Data: data, ContentType: contentType}, nil
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	token, admin, err := s.service.Login(r.Context(), clientKey(r), body.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  admin.ExpiresAt,
		MaxAge:   int(s.service.SessionTTL().Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"name":      admin.Name,
		"expiresAt": admin.ExpiresAt,
	})
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	token := sessionToken(r)
	if token == "" {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	admin, err := s.service.Authenticate(r.Context(), token)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"name":          admin.Name,
		"expiresAt":     admin.ExpiresAt,
	})
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	admin := adminFrom(r)
	if err := s.service.Logout(r.Context(), admin); err != nil {
		s.fail(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleListLeads(w http.ResponseWriter, r *http.Request) {
	period, err := s.period(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := lead.Status(strings.TrimSpace(r.URL.Query().Get("status")))
	leads, err := s.service.ListLeads(r.Context(), adminFrom(r), period, status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"leads":       leads,
		"count":       len(leads),
		"year":        period.Year,
		"month":       period.Month,
		"rangeMonths": leadstore.ClampRange(period.RangeMonths),
	})
}

func (s *HTTPServer) handleGetLead(w http.ResponseWriter, r *http.Request) {
	year, month, err := partitionFromQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	l, err := s.service.GetLead(r.Context(), adminFrom(r), chi.URLParam(r, "id"), year, month)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lead": l})
}

func (s *HTTPServer) handleUpdateLead(w http.ResponseWriter, r *http.Request) {
	var body struct {
		lead.Update
		Year  int `json:"year"`
		Month int `json:"month"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	year, month, err := partitionFromQuery(r)
	if err != nil {
		if body.Year == 0 || body.Month == 0 {
			s.fail(w, r, err)
			return
		}
		year, month = body.Year, body.Month
	}

	updated, err := s.service.UpdateLead(r.Context(), adminFrom(r), chi.URLParam(r, "id"), year, month, body.Update)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lead": updated})
}

func (s *HTTPServer) handleLicenseURL(w http.ResponseWriter, r *http.Request) {
	year, month, err := partitionFromQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	url, expires, err := s.service.LicenseURL(r.Context(), adminFrom(r), chi.URLParam(r, "id"), year, month)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": url, "expiresAt": expires})
}

func (s *HTTPServer) handleSendEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TemplateID string `json:"templateId"`
		Year       int    `json:"year"`
		Month      int    `json:"month"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	year, month, err := partitionFromQuery(r)
	if err != nil {
		if body.Year == 0 || body.Month == 0 {
			s.fail(w, r, err)
			return
		}
		year, month = body.Year, body.Month
	}

	updated, err := s.service.SendLeadEmail(r.Context(), adminFrom(r), chi.URLParam(r, "id"), year, month, body.TemplateID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lead": updated})
}

func (s *HTTPServer) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	period, err := s.period(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	mode := analytics.Mode(r.URL.Query().Get("bucket"))
	if mode == "" {
		mode = analytics.Weekly
	}
	summary, err := s.service.Analytics(r.Context(), adminFrom(r), period, mode)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	period, err := s.period(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	resp, err := s.service.Search(r.Context(), adminFrom(r), search.Query{
		Text:        strings.TrimSpace(q.Get("q")),
		Year:        period.Year,
		Month:       period.Month,
		RangeMonths: period.RangeMonths,
		Status:      lead.Status(q.Get("status")),
		Limit:       limit,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleEmailTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.service.EmailTemplates(adminFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
}

// requireAdmin resolves the bearer token or session cookie into an
// auth.Admin carried on the request context.
func (s *HTTPServer) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		admin, err := s.service.Authenticate(r.Context(), token)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithAdmin(r.Context(), admin)))
	})
}

func adminFrom(r *http.Request) auth.Admin {
	admin, _ := auth.AdminFrom(r.Context())
	return admin
}

// period reads year, month and rangeMonths, defaulting to the current month.
func (s *HTTPServer) period(r *http.Request) (Period, error) {
	p := s.service.DefaultPeriod()
	q := r.URL.Query()
	if v := q.Get("year"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, leadstore.ErrInvalidPartition
		}
		p.Year = n
	}
	if v := q.Get("month"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, leadstore.ErrInvalidPartition
		}
		p.Month = n
	}
	if v := q.Get("rangeMonths"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, domainError(http.StatusBadRequest, "INVALID_RANGE", "rangeMonths must be a number", nil)
		}
		p.RangeMonths = n
	}
	return p, nil
}

func partitionFromQuery(r *http.Request) (int, int, error) {
	q := r.URL.Query()
	year, yerr := strconv.Atoi(q.Get("year"))
	month, merr := strconv.Atoi(q.Get("month"))
	if yerr != nil || merr != nil {
		return 0, 0, domainError(http.StatusBadRequest, "PARTITION_REQUIRED", "year and month are required", nil)
	}
	return year, month, nil
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status == http.StatusTooManyRequests {
		if m, ok := details.(map[string]any); ok {
			w.Header().Set("Retry-After", strconv.Itoa(m["retryAfterSeconds"].(int)))
		}
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", map[string]interface{}{
			"request_id": requestID(r.Context()),
			"path":       r.URL.Path,
			"error":      err,
		})
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = util.NewID("req")
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("X-Request-ID", reqID)
		writer.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(writer, r)

		s.log.Info("http request", map[string]interface{}{
			"request_id":  reqID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      writer.status,
			"duration_ms": time.Since(started).Milliseconds(),
		})
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// sessionToken prefers the Authorization header over the cookie.
func sessionToken(r *http.Request) string {
	if token := bearerToken(r); token != "" {
		return token
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// clientKey identifies the caller for rate limiting. RemoteAddr only carries a
// forwarded address when TrustProxy installed RealIP.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
