package auction

import (
	"fmt"
)

var (
	ErrInvalidConfig       = fmt.Errorf("invalid auction config")
	ErrOwnerCannotBid      = fmt.Errorf("owner cannot bid")
	ErrAuctionNotActive    = fmt.Errorf("auction not active")
	ErrBidTooLow           = fmt.Errorf("bid too low")
	ErrNotOwner            = fmt.Errorf("caller is not the owner")
	ErrAlreadyCanceled     = fmt.Errorf("auction already canceled")
	ErrAuctionNotConcluded = fmt.Errorf("auction not concluded")
	ErrNothingToWithdraw   = fmt.Errorf("nothing to withdraw")
)

func boolString(b bool, ifTrue, ifFalse string) string {
	if b {
		return ifTrue
	}
	return ifFalse
}
