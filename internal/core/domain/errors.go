package domain

import "errors"

var (
	ErrAuthRejected      = errors.New("pairing token rejected")
	ErrCapacityReached   = errors.New("viewer capacity reached")
	ErrSlotNotFound      = errors.New("viewer slot not found")
	ErrAcquisitionFailed = errors.New("capture acquisition failed")
	ErrNoSource          = errors.New("no active media source")
	ErrSignalingDown     = errors.New("signaling connection down")
	ErrConnectTimeout    = errors.New("connection attempt timed out")
	ErrEntryNotFound     = errors.New("history entry not found")
	ErrTooManyAttempts   = errors.New("too many admission attempts")
)
