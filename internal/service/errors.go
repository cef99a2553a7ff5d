package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthenticated  = errors.New("authentication required")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidSignature = errors.New("invalid wallet signature")
	ErrInvalidNonce     = errors.New("nonce is unknown or expired")

	ErrLinkNotFound         = errors.New("link not found")
	ErrAlreadyClaimed       = errors.New("link already claimed")
	ErrDuplicateDeposit     = errors.New("deposit already used by another link")
	ErrDepositRejected      = errors.New("deposit rejected")
	ErrSettlementInProgress = errors.New("another settlement of this link is in progress")
	// ErrSettlementPending means a transfer was submitted but not observed; the reconciler settles it.
	ErrSettlementPending = errors.New("settlement submitted, outcome pending")

	ErrLinkExists             = errors.New("Link already exists")
	ErrSupplyExhausted        = errors.New("supply exhausted")
	ErrAlreadyClaimedByWallet = errors.New("already claimed by this wallet")
	ErrCollectionNotFound     = errors.New("collection not found")
	ErrCollectionNotReady     = errors.New("collection is not provisioned")
)

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
