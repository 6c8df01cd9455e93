package slip

import "errors"

var (
	// ErrSlipNotFound is returned when a slip ID does not exist.
	ErrSlipNotFound = errors.New("slip not found")

	// ErrAlreadyReviewed is returned when reviewing a slip a second time.
	ErrAlreadyReviewed = errors.New("slip already reviewed")

	// ErrInvalidSlip wraps every field validation failure.
	ErrInvalidSlip = errors.New("invalid slip")

	// ErrUnknownPeriod is returned for a period number not in the bell schedule.
	ErrUnknownPeriod = errors.New("unknown period")

	// ErrInvalidDouble is returned when a double session cannot start at the
	// given period: it is the last period or the next one follows a break.
	ErrInvalidDouble = errors.New("double session not possible from this period")

	// ErrInvalidClock is returned for a time that is not 24-hour HH:MM.
	ErrInvalidClock = errors.New("time must be HH:MM")
)
