package lead

import (
	"strings"
	"time"
)

// Update is an admin edit. Every field is optional; status, notes and
// interaction are applied in that order to a single in-memory copy.
type Update struct {
	Status      *Status           `json:"status,omitempty"`
	DeadReason  *DeadReason       `json:"deadReason,omitempty"`
	StatusNote  string            `json:"statusNote,omitempty"`
	Notes       *string           `json:"notes,omitempty"`
	Interaction *InteractionInput `json:"interaction,omitempty"`
}

type InteractionInput struct {
	Type InteractionType `json:"type"`
	Note string          `json:"note,omitempty"`
}

func (u Update) Empty() bool {
	return u.Status == nil && u.DeadReason == nil && u.Notes == nil && u.Interaction == nil
}

// Apply returns l with u applied at now. l is never modified. Every check runs
// before any field changes, so a rejected update leaves nothing half applied.
//
// A deadReason without a status refines the current status: it is recorded
// when the lead is dead and ignored otherwise. A status equal to the current
// one with an unchanged (or absent) reason is a no-op and adds no history.
func Apply(l Lead, u Update, now time.Time) (Lead, error) {
	now = now.UTC()

	target := l.Status
	if u.Status != nil {
		target = *u.Status
		if !target.Valid() {
			return l, ErrInvalidStatus
		}
	}
	var reason DeadReason
	if u.DeadReason != nil && target == StatusDead {
		reason = *u.DeadReason
		if reason != "" && !reason.Valid() {
			return l, ErrInvalidDeadReason
		}
	}
	if u.Interaction != nil && !u.Interaction.Type.Valid() {
		return l, ErrInvalidInteractionType
	}

	out := l.clone()
	note := strings.TrimSpace(u.StatusNote)

	switch {
	case u.Status != nil && target != out.Status:
		out.StatusHistory = append(out.StatusHistory, StatusChange{
			Status:     target,
			DeadReason: reason,
			ChangedAt:  now,
			Note:       note,
		})
		out.Status = target
		out.DeadReason = reason
		if target.Terminal() && out.ClosedAt == nil {
			closed := now
			out.ClosedAt = &closed
		}
	case target == StatusDead && u.DeadReason != nil && reason != out.DeadReason:
		out.StatusHistory = append(out.StatusHistory, StatusChange{
			Status:     StatusDead,
			DeadReason: reason,
			ChangedAt:  now,
			Note:       note,
		})
		out.DeadReason = reason
	}
	if out.Status != StatusDead {
		out.DeadReason = ""
	}

	if u.Notes != nil {
		out.Notes = *u.Notes
	}

	if u.Interaction != nil {
		out.Interactions = append(out.Interactions, Interaction{
			Type:      u.Interaction.Type,
			Note:      strings.TrimSpace(u.Interaction.Note),
			CreatedAt: now,
		})
	}
	return out, nil
}
