package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrWSDisconnect     = errors.New("websocket disconnected")
	ErrReadTimeout      = errors.New("read timeout")
	ErrRetriesExhausted = errors.New("reconnect retries exhausted")
	ErrFlushFailed      = errors.New("event log flush failed")
	ErrLockHeld         = errors.New("lock already held")
	ErrNoTrackedAssets  = errors.New("no tracked assets")
	ErrIdentityMismatch = errors.New("book identity mismatch")
)
