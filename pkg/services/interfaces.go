package services

import "context"

// CacheEvictor removes expired entries from the shared response cache
type CacheEvictor interface {
	// EvictExpired deletes cache rows past their TTL and returns the count
	EvictExpired(ctx context.Context) (int64, error)
}

// SessionPurger removes expired user sessions
type SessionPurger interface {
	// PurgeExpired deletes sessions past their expiry and returns the count
	PurgeExpired(ctx context.Context) (int64, error)
}

// WinbackDispatcher enqueues win-back campaign messages for lapsed accounts
type WinbackDispatcher interface {
	// DispatchDue marks due accounts as contacted and returns how many
	// campaigns were dispatched
	DispatchDue(ctx context.Context) (int64, error)
}

// DigestSender fans out digest push notifications
type DigestSender interface {
	// SendDigests queues a digest push for every opted-in device and
	// returns how many were queued
	SendDigests(ctx context.Context) (int64, error)
}
