package model

import "time"

// ProposalStatus is the lifecycle state of a proposal.
type ProposalStatus string

const (
	ProposalPending    ProposalStatus = "pending"
	ProposalAccepted   ProposalStatus = "accepted"
	ProposalRejected   ProposalStatus = "rejected"
	ProposalExpired    ProposalStatus = "expired"
	ProposalSuperseded ProposalStatus = "superseded"
)

// Changes is the sparse set of terms a proposal wants to alter. A nil
// field means "keep the current value".
type Changes struct {
	Date            *string `json:"date,omitempty"`
	Time            *string `json:"time,omitempty"`
	DurationMinutes *int    `json:"duration_minutes,omitempty"`
	VenueID         *string `json:"venue_id,omitempty"`
	PriceCents      *int64  `json:"price_cents,omitempty"`
}

// Empty reports whether no field is set.
func (c Changes) Empty() bool {
	return c.Date == nil && c.Time == nil && c.DurationMinutes == nil && c.VenueID == nil && c.PriceCents == nil
}

// Apply returns t with every set field replaced.
func (c Changes) Apply(t Terms) Terms {
	if c.Date != nil {
		t.Date = *c.Date
	}
	if c.Time != nil {
		t.Time = *c.Time
	}
	if c.DurationMinutes != nil {
		t.DurationMinutes = *c.DurationMinutes
	}
	if c.VenueID != nil {
		t.VenueID = *c.VenueID
	}
	if c.PriceCents != nil {
		t.PriceCents = *c.PriceCents
	}
	return t
}

// Proposal is a party-authored change request against a booking. A
// booking owns its proposals; they are never deleted so the negotiation
// can be audited.
//
// KeepOriginal marks a counter that asks to return to the terms in force
// before the negotiation started; accepting it changes nothing.
type Proposal struct {
	ID              string         `json:"id"`
	BookingID       string         `json:"booking_id"`
	ProposedBy      Party          `json:"proposed_by"`
	ActorID         string         `json:"actor_id"`
	Changes         Changes        `json:"changes"`
	KeepOriginal    bool           `json:"keep_original,omitempty"`
	Message         string         `json:"message,omitempty"`
	Status          ProposalStatus `json:"status"`
	Round           int            `json:"round"`
	ResponseMessage string         `json:"response_message,omitempty"`
	RespondedBy     string         `json:"responded_by,omitempty"`
	RespondedAt     *time.Time     `json:"responded_at,omitempty"`
	SupersededBy    string         `json:"superseded_by,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	ExpiresAt       time.Time      `json:"expires_at"`
}

// Clone returns a deep copy of p.
func (p *Proposal) Clone() *Proposal {
	if p == nil {
		return nil
	}
	c := *p
	c.RespondedAt = cloneTime(p.RespondedAt)
	c.Changes = Changes{
		Date:            cloneString(p.Changes.Date),
		Time:            cloneString(p.Changes.Time),
		DurationMinutes: cloneInt(p.Changes.DurationMinutes),
		VenueID:         cloneString(p.Changes.VenueID),
		PriceCents:      cloneInt64(p.Changes.PriceCents),
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

func cloneInt64(i *int64) *int64 {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
