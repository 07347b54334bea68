package domain

import (
	"errors"
)

var (
	ErrNameTooLong          = errors.New("name too long")
	ErrNameEmpty            = errors.New("name empty")
	ErrParticipantIDEmpty   = errors.New("participant id empty")
	ErrParticipantIDTooLong = errors.New("participant id too long")
	ErrRoomIDEmpty          = errors.New("room id empty")
)

var (
	// ErrPermissionDenied: the user or the OS refused access to a capture device.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrDeviceUnavailable: no usable camera, microphone or display source.
	ErrDeviceUnavailable = errors.New("device unavailable")
	// ErrNegotiationFailure: ICE or the peer connection broke down.
	ErrNegotiationFailure = errors.New("negotiation failure")
	// ErrChannelNotReady: the data channel is not open.
	ErrChannelNotReady = errors.New("channel not ready")
	// ErrInvalidTransition: a protocol message arrived out of order.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrStaleMessage: a redelivered or obsolete event.
	ErrStaleMessage = errors.New("stale message")

	ErrConnectionClosed   = errors.New("connection closed")
	ErrNotMember          = errors.New("not a room member")
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrSelfInvitation     = errors.New("cannot invite yourself")
	ErrRateLimited        = errors.New("rate limited")
)

// Silent reports errors that are expected under at-least-once delivery.
// They are dropped locally and never shown to the user.
func Silent(err error) bool {
	return errors.Is(err, ErrStaleMessage) || errors.Is(err, ErrInvalidTransition)
}

// Retriable reports user-facing failures that a retry (rejoin, new permission
// prompt) may fix. Nothing is retried automatically.
func Retriable(err error) bool {
	return errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrDeviceUnavailable) ||
		errors.Is(err, ErrNegotiationFailure)
}
