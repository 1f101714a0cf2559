package pbx

import "errors"

var (
	// ErrInvalidRequest is returned when a required field is missing or malformed.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrEndpointNotFound is returned for an unknown endpoint or endpoint type.
	ErrEndpointNotFound = errors.New("endpoint not found")
	// ErrConversationNotFound is returned when the endpoint has no such conversation.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrChannelNotFound is returned when no channel can be resolved to act on.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrApplicantNotParty is returned when the requester is not part of the conversation.
	ErrApplicantNotParty = errors.New("applicant is not a party of the conversation")
	// ErrQueueNotFound is returned for an unknown queue.
	ErrQueueNotFound = errors.New("queue not found")
	// ErrMemberNotFound is returned for an unknown queue member.
	ErrMemberNotFound = errors.New("queue member not found")
	// ErrParkingNotFound is returned for an unknown or empty parking.
	ErrParkingNotFound = errors.New("parking not found")
)
