package booking

import (
	"errors"
	"fmt"

	"github.com/iliyamo/fitbook/internal/model"
)

// CheckBooking verifies the rules every stored booking satisfies. The
// engine refuses to commit a booking that fails it.
func CheckBooking(b *model.Booking) error {
	var errs []error
	if !b.Status.Valid() {
		errs = append(errs, fmt.Errorf("unknown status %q", b.Status))
	}
	if b.Status.Negotiating() != (b.ActiveProposalID != "") {
		errs = append(errs, fmt.Errorf("status %s with active proposal %q", b.Status, b.ActiveProposalID))
	}
	if b.Status.Negotiating() && b.PreProposalStatus != "" && !Allowed(TriggerRevert, b.Status, b.PreProposalStatus) {
		errs = append(errs, fmt.Errorf("status %s cannot revert to %s", b.Status, b.PreProposalStatus))
	}
	waiting := b.Status.AwaitingResolution() && b.PaymentMethod == model.PaymentPayAtVenue
	if waiting != (b.PaymentDueDate != nil) {
		errs = append(errs, fmt.Errorf("status %s paying %s with due date set=%t", b.Status, b.PaymentMethod, b.PaymentDueDate != nil))
	}
	return errors.Join(errs...)
}

// CheckNegotiation verifies that a booking has at most one open proposal
// and that it is the one the booking points at.
func CheckNegotiation(b *model.Booking, proposals []model.Proposal) error {
	open := 0
	for _, p := range proposals {
		if p.Status != model.ProposalPending {
			continue
		}
		open++
		if p.ID != b.ActiveProposalID {
			return fmt.Errorf("open proposal %s is not the active one (%q)", p.ID, b.ActiveProposalID)
		}
	}
	if open > 1 {
		return fmt.Errorf("%d open proposals", open)
	}
	if b.ActiveProposalID != "" && open == 0 {
		return fmt.Errorf("active proposal %s is not open", b.ActiveProposalID)
	}
	return nil
}
