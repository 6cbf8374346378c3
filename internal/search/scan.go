package search

import (
	"context"
	"strings"

	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/auth"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/lead"
)

// LeadLister is the slice of the lead repository the scanner needs.
type LeadLister interface {
	ListLeadsAcrossMonths(ctx context.Context, admin auth.Admin, year, month, rangeMonths int) ([]lead.Lead, error)
}

// Scanner searches by loading the requested partitions and matching in
// process. Slow, but needs nothing beyond object storage.
type Scanner struct {
	leads LeadLister
}

func NewScanner(leads LeadLister) *Scanner {
	return &Scanner{leads: leads}
}

func (s *Scanner) Search(ctx context.Context, admin auth.Admin, q Query) ([]Result, int, error) {
	leads, err := s.leads.ListLeadsAcrossMonths(ctx, admin, q.Year, q.Month, q.RangeMonths)
	if err != nil {
		return nil, 0, err
	}
	results := []Result{}
	for _, l := range leads {
		if q.Status != "" && l.Status != q.Status {
			continue
		}
		if !Matches(l, q.Text) {
			continue
		}
		results = append(results, resultFromLead(l))
	}
	total := len(results)
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, total, nil
}

// Matches reports whether every word of text appears in the lead's name,
// email, phone, cosigner name or notes. Phone matching ignores punctuation.
func Matches(l lead.Lead, text string) bool {
	terms := strings.Fields(strings.ToLower(text))
	if len(terms) == 0 {
		return true
	}
	haystack := strings.ToLower(strings.Join([]string{
		l.FormData.FullName,
		l.FormData.Email,
		l.FormData.Phone,
		l.FormData.CosignerFullName,
		l.Notes,
	}, " "))
	phone := digits(l.FormData.Phone)

	for _, term := range terms {
		if strings.Contains(haystack, term) {
			continue
		}
		if d := digits(term); len(d) >= 3 && strings.Contains(phone, d) {
			continue
		}
		return false
	}
	return true
}
