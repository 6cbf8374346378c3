// Package lead holds the lead record, its enumerations, submission validation
// and the pure status/interaction state machine.
package lead

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusNew        Status = "new"
	StatusWorking    Status = "working"
	StatusCircleBack Status = "circle-back"
	StatusApproval   Status = "approval"
	StatusDead       Status = "dead"
)

// Statuses lists every status in pipeline order.
var Statuses = []Status{StatusNew, StatusWorking, StatusCircleBack, StatusApproval, StatusDead}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal statuses stamp closedAt the first time they are entered.
func (s Status) Terminal() bool {
	return s == StatusApproval || s == StatusDead
}

type DeadReason string

const (
	DeadDeclined            DeadReason = "declined"
	DeadNegativeEquity      DeadReason = "negative-equity"
	DeadNoLongerInterested  DeadReason = "no-longer-interested"
	DeadAlreadyPurchased    DeadReason = "already-purchased"
	DeadNoVehicleOfInterest DeadReason = "no-vehicle-of-interest"
	DeadCannotAffordPayment DeadReason = "cannot-afford-payment"
	DeadTooFarToVisit       DeadReason = "too-far-to-visit"
)

var DeadReasons = []DeadReason{
	DeadDeclined,
	DeadNegativeEquity,
	DeadNoLongerInterested,
	DeadAlreadyPurchased,
	DeadNoVehicleOfInterest,
	DeadCannotAffordPayment,
	DeadTooFarToVisit,
}

func (r DeadReason) Valid() bool {
	for _, v := range DeadReasons {
		if r == v {
			return true
		}
	}
	return false
}

type InteractionType string

const (
	InteractionCall     InteractionType = "call"
	InteractionMessage  InteractionType = "message"
	InteractionEmail    InteractionType = "email"
	InteractionFollowUp InteractionType = "follow-up"
	InteractionNote     InteractionType = "note"
)

var InteractionTypes = []InteractionType{
	InteractionCall,
	InteractionMessage,
	InteractionEmail,
	InteractionFollowUp,
	InteractionNote,
}

func (t InteractionType) Valid() bool {
	for _, v := range InteractionTypes {
		if t == v {
			return true
		}
	}
	return false
}

type StatusChange struct {
	Status     Status     `json:"status"`
	DeadReason DeadReason `json:"deadReason,omitempty"`
	ChangedAt  time.Time  `json:"changedAt"`
	Note       string     `json:"note,omitempty"`
}

type Interaction struct {
	Type      InteractionType `json:"type"`
	Note      string          `json:"note,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

type Lead struct {
	ID                string         `json:"id"`
	CreatedAt         time.Time      `json:"createdAt"`
	MonthYear         string         `json:"monthYear"`
	Status            Status         `json:"status"`
	DeadReason        DeadReason     `json:"deadReason,omitempty"`
	Notes             string         `json:"notes"`
	DriversLicenseKey string         `json:"driversLicenseKey,omitempty"`
	StatusHistory     []StatusChange `json:"statusHistory"`
	Interactions      []Interaction  `json:"interactions"`
	ClosedAt          *time.Time     `json:"closedAt,omitempty"`
	FormData          FormData       `json:"formData"`
}

// New builds a freshly submitted lead. The initial "new" status is the first
// history entry so the timeline starts at submission.
func New(id string, form FormData, now time.Time) Lead {
	now = now.UTC()
	return Lead{
		ID:            id,
		CreatedAt:     now,
		MonthYear:     MonthYear(now),
		Status:        StatusNew,
		StatusHistory: []StatusChange{{Status: StatusNew, ChangedAt: now}},
		Interactions:  []Interaction{},
		FormData:      form,
	}
}

// MonthYear is the partition label, e.g. "2024-03".
func MonthYear(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

// Normalize fills slices older records may have omitted.
func (l *Lead) Normalize() {
	if l.StatusHistory == nil {
		l.StatusHistory = []StatusChange{}
	}
	if l.Interactions == nil {
		l.Interactions = []Interaction{}
	}
	if l.Status == "" {
		l.Status = StatusNew
	}
	if l.MonthYear == "" && !l.CreatedAt.IsZero() {
		l.MonthYear = MonthYear(l.CreatedAt)
	}
}

func (l Lead) HasLicense() bool {
	return l.DriversLicenseKey != ""
}

// FirstInteraction returns the earliest logged interaction, if any.
func (l Lead) FirstInteraction() (Interaction, bool) {
	if len(l.Interactions) == 0 {
		return Interaction{}, false
	}
	first := l.Interactions[0]
	for _, in := range l.Interactions[1:] {
		if in.CreatedAt.Before(first.CreatedAt) {
			first = in
		}
	}
	return first, true
}

func (l Lead) clone() Lead {
	out := l
	out.StatusHistory = append(make([]StatusChange, 0, len(l.StatusHistory)+1), l.StatusHistory...)
	out.Interactions = append(make([]Interaction, 0, len(l.Interactions)+1), l.Interactions...)
	if l.ClosedAt != nil {
		closed := *l.ClosedAt
		out.ClosedAt = &closed
	}
	return out
}
