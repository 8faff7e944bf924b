package chainmgr

import "errors"

// ErrNoBestChain is returned by Tip and HeaderAtTip when the best chain
// holds no records at all (its height is below zero).
var ErrNoBestChain = errors.New("chainmgr: no best chain registered")

// ErrChainNotFound is returned when an operation names a chain id (a
// forkpoint hash) the registry doesn't recognise.
var ErrChainNotFound = errors.New("chainmgr: chain not found")

// ErrTooManySwaps guards the reorg swap loop against pathological data.
var ErrTooManySwaps = errors.New("chainmgr: swapping fork with parent too many times")
