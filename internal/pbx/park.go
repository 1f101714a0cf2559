package pbx

import (
	"context"
	"fmt"

	"github.com/sweeney/asterisk-proxy/internal/ami"
	"github.com/sweeney/asterisk-proxy/internal/model"
)

// ParkConversation parks the other party of a conversation. The applicant
// must be one of its two parties; when the parking times out the call
// returns to the applicant's own channel.
func (e *Engine) ParkConversation(ctx context.Context, endpointType, ext, convID, applicant string) error {
	_, c, err := e.conversation(endpointType, ext, convID)
	if err != nil {
		return err
	}
	if !isParty(c, applicant) {
		return fmt.Errorf("%w: %s in %s", ErrApplicantNotParty, applicant, convID)
	}
	own, err := ownChannel(c, applicant)
	if err != nil {
		return err
	}
	parkee, err := counterpartChannel(c, applicant)
	if err != nil {
		return err
	}
	_, err = e.send(ctx, ami.NewAction("Park",
		"Channel", parkee,
		"TimeoutChannel", own,
		"Parkinglot", e.cfg.ParkLot,
	))
	if err != nil {
		return fmt.Errorf("park %s: %w", convID, err)
	}
	e.after("park", ext, applicant)
	return nil
}

// isParty reports whether ext owns one of the conversation legs.
func isParty(c model.Conversation, ext string) bool {
	if ext == "" {
		return false
	}
	if c.Source.Owner() == ext {
		return true
	}
	return c.Dest != nil && c.Dest.Owner() == ext
}

// PickupParking moves the parked call to the picking extension.
func (e *Engine) PickupParking(ctx context.Context, parkingID, endpointType, picker string) error {
	if _, err := e.extension(endpointType, picker); err != nil {
		return err
	}
	p, ok := e.store.Parking(parkingID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrParkingNotFound, parkingID)
	}
	if p.Caller == nil || p.Caller.Channel == "" {
		return fmt.Errorf("%w: nothing parked in %s", ErrChannelNotFound, parkingID)
	}
	if err := e.redirect(ctx, p.Caller.Channel, e.cfg.InternalContext, picker); err != nil {
		return fmt.Errorf("pickup parking %s by %s: %w", parkingID, picker, err)
	}
	e.after("pickup parking", picker)
	return nil
}
