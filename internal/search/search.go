// Package search finds leads by name, email, phone or notes. Meilisearch is
// used when reachable; otherwise matching partitions are scanned directly.
package search

import (
	"context"
	"time"

	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/lead"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID          string      `json:"id"`
	FullName    string      `json:"fullName"`
	Email       string      `json:"email"`
	Phone       string      `json:"phone"`
	Status      lead.Status `json:"status"`
	VehicleType string      `json:"vehicleType"`
	PaymentType string      `json:"paymentType"`
	MonthYear   string      `json:"monthYear"`
	CreatedAt   time.Time   `json:"createdAt"`
	Snippet     string      `json:"snippet,omitempty"`
}

// Query searches the months ending at (Year, Month), RangeMonths back.
type Query struct {
	Text        string
	Year        int
	Month       int
	RangeMonths int
	Status      lead.Status
	Limit       int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Engine  string   `json:"engine"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// LeadRecord is the data we index for a lead.
type LeadRecord struct {
	ID               string `json:"id"`
	FullName         string `json:"fullName"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	PhoneDigits      string `json:"phoneDigits"`
	CosignerFullName string `json:"cosignerFullName,omitempty"`
	Notes            string `json:"notes,omitempty"`
	Status           string `json:"status"`
	VehicleType      string `json:"vehicleType"`
	PaymentType      string `json:"paymentType"`
	MonthYear        string `json:"monthYear"`
	CreatedAt        int64  `json:"createdAt"`
}

func RecordFromLead(l lead.Lead) LeadRecord {
	return LeadRecord{
		ID:               l.ID,
		FullName:         l.FormData.FullName,
		Email:            l.FormData.Email,
		Phone:            l.FormData.Phone,
		PhoneDigits:      digits(l.FormData.Phone),
		CosignerFullName: l.FormData.CosignerFullName,
		Notes:            l.Notes,
		Status:           string(l.Status),
		VehicleType:      l.FormData.VehicleType,
		PaymentType:      l.FormData.PaymentType,
		MonthYear:        l.MonthYear,
		CreatedAt:        l.CreatedAt.Unix(),
	}
}

func resultFromLead(l lead.Lead) Result {
	return Result{
		ID:          l.ID,
		FullName:    l.FormData.FullName,
		Email:       l.FormData.Email,
		Phone:       l.FormData.Phone,
		Status:      l.Status,
		VehicleType: l.FormData.VehicleType,
		PaymentType: l.FormData.PaymentType,
		MonthYear:   l.MonthYear,
		CreatedAt:   l.CreatedAt,
	}
}

func digits(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
