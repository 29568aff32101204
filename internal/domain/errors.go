package domain

import "errors"

// Engine rejections are synchronous and atomic: an operation either fully
// applies or fails with one of these sentinels and mutates nothing. Callers
// match with errors.Is; handlers map each kind to a distinct HTTP status so
// the UI can render precise guidance.
var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAlreadyReleased   = errors.New("escrow already released")
	ErrMarketClosed      = errors.New("market closed")
	ErrInsiderRestricted = errors.New("insider trading restricted")
	ErrAlreadyMinted     = errors.New("ip record already minted")
	ErrAlreadyResolved   = errors.New("proposal already resolved")
	ErrInvalidProof      = errors.New("invalid attestation proof")
	ErrAlreadyClaimed    = errors.New("winnings already claimed")
	ErrNotAuthorized     = errors.New("not authorized")
	ErrProposalNotFound  = errors.New("proposal not found")

	// ErrNotFound is the generic lookup failure used by stores and caches.
	ErrNotFound = errors.New("not found")

	// ErrLockHeld reports that a distributed lock is held by another party.
	ErrLockHeld = errors.New("lock already held")
)
