package shared

import "github.com/google/uuid"

// NoWinner is the winner label for an auction that closed without bids
const NoWinner = "no winner"

// EndResult is the outcome of a finalize attempt. Closed is true for
// exactly one caller per auction; every other caller observes the
// already-terminal state and gets Closed false.
type EndResult struct {
	AuctionID  uuid.UUID
	Closed     bool
	WinnerID   *uuid.UUID
	FinalPrice float64
	Status     string
}

// WinnerLabel returns the winner id as a string, or NoWinner if the
// auction closed without a single accepted bid.
func (r *EndResult) WinnerLabel() string {
	if r.WinnerID == nil {
		return NoWinner
	}
	return r.WinnerID.String()
}
