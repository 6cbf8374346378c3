// Package analytics derives dashboard figures from a slice of leads. Nothing
// here performs I/O.
package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/lead"
)

type Mode string

const (
	Weekly  Mode = "weekly"
	Monthly Mode = "monthly"
)

func (m Mode) Valid() bool {
	return m == Weekly || m == Monthly
}

// Bucket groups leads created in one ISO week or calendar month. Start is the
// first instant of the period and is what buckets sort by.
type Bucket struct {
	Label        string              `json:"label"`
	Start        time.Time           `json:"start"`
	Total        int                 `json:"total"`
	StatusCounts map[lead.Status]int `json:"statusCounts"`
}

// Summary is the analytics view. Rates are whole percentages. The average
// pointers are nil when there is nothing to average, so callers can tell
// "no data" from zero.
type Summary struct {
	Total            int                     `json:"total"`
	StatusCounts     map[lead.Status]int     `json:"statusCounts"`
	DeadReasonCounts map[lead.DeadReason]int `json:"deadReasonCounts"`
	ConversionRate   int                     `json:"conversionRate"`
	DeadRate         int                     `json:"deadRate"`
	ActiveRate       int                     `json:"activeRate"`
	Buckets          []Bucket                `json:"buckets"`

	AvgInteractionsPerLead *float64 `json:"avgInteractionsPerLead"`
	AvgDaysToClose         *float64 `json:"avgDaysToClose"`
	AvgHoursToFirstContact *float64 `json:"avgHoursToFirstContact"`

	PaymentTypeCounts map[string]int `json:"paymentTypeCounts"`
	VehicleTypeCounts map[string]int `json:"vehicleTypeCounts"`
	UrgencyCounts     map[string]int `json:"urgencyCounts"`
	LicenseUploads    int            `json:"licenseUploads"`
}

// Summarize computes a Summary. Buckets are assigned in loc (UTC when nil).
func Summarize(leads []lead.Lead, mode Mode, loc *time.Location) Summary {
	if loc == nil {
		loc = time.UTC
	}
	s := Summary{
		Total:             len(leads),
		StatusCounts:      make(map[lead.Status]int, len(lead.Statuses)),
		DeadReasonCounts:  map[lead.DeadReason]int{},
		Buckets:           []Bucket{},
		PaymentTypeCounts: map[string]int{},
		VehicleTypeCounts: map[string]int{},
		UrgencyCounts:     map[string]int{},
	}
	for _, st := range lead.Statuses {
		s.StatusCounts[st] = 0
	}

	var (
		interactions  int
		closeDays     []float64
		firstContacts []float64
		buckets       = map[time.Time]*Bucket{}
	)
	for _, l := range leads {
		s.StatusCounts[l.Status]++
		if l.Status == lead.StatusDead && l.DeadReason != "" {
			s.DeadReasonCounts[l.DeadReason]++
		}
		if l.FormData.PaymentType != "" {
			s.PaymentTypeCounts[l.FormData.PaymentType]++
		}
		if l.FormData.VehicleType != "" {
			s.VehicleTypeCounts[l.FormData.VehicleType]++
		}
		if l.FormData.Urgency != "" {
			s.UrgencyCounts[l.FormData.Urgency]++
		}
		if l.HasLicense() {
			s.LicenseUploads++
		}

		interactions += len(l.Interactions)
		if l.ClosedAt != nil {
			closeDays = append(closeDays, l.ClosedAt.Sub(l.CreatedAt).Hours()/24)
		}
		if first, ok := l.FirstInteraction(); ok {
			firstContacts = append(firstContacts, first.CreatedAt.Sub(l.CreatedAt).Hours())
		}

		start := periodStart(l.CreatedAt.In(loc), mode)
		b, ok := buckets[start]
		if !ok {
			b = &Bucket{Label: label(start, mode), Start: start, StatusCounts: map[lead.Status]int{}}
			buckets[start] = b
		}
		b.Total++
		b.StatusCounts[l.Status]++
	}

	s.ConversionRate = percent(s.StatusCounts[lead.StatusApproval], s.Total)
	s.DeadRate = percent(s.StatusCounts[lead.StatusDead], s.Total)
	s.ActiveRate = percent(s.StatusCounts[lead.StatusWorking]+s.StatusCounts[lead.StatusCircleBack], s.Total)

	if s.Total > 0 {
		avg := float64(interactions) / float64(s.Total)
		s.AvgInteractionsPerLead = &avg
	}
	s.AvgDaysToClose = mean(closeDays)
	s.AvgHoursToFirstContact = mean(firstContacts)

	for _, b := range buckets {
		s.Buckets = append(s.Buckets, *b)
	}
	sort.Slice(s.Buckets, func(i, j int) bool { return s.Buckets[i].Start.Before(s.Buckets[j].Start) })
	return s
}

func percent(n, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(n) * 100 / float64(total)))
}

func mean(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	avg := math.Round(sum/float64(len(values))*10) / 10
	return &avg
}

// periodStart returns midnight on the Monday of t's ISO week, or the first of
// t's month.
func periodStart(t time.Time, mode Mode) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	if mode == Monthly {
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	}
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func label(start time.Time, mode Mode) string {
	if mode == Monthly {
		return start.Format("Jan 2006")
	}
	year, week := start.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
