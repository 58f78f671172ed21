package repository

import (
	"context"
	"errors"
	"time"

	"github.com/satymtripathi/microbiology/pkg/types"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("record not found")

	// ErrNotPending is returned when a request cannot be completed because it
	// is missing or was already completed
	ErrNotPending = errors.New("request is not pending")

	// ErrDuplicate is returned on a unique constraint violation
	ErrDuplicate = errors.New("duplicate record")
)

// UserRepositoryInterface defines the persistence operations on portal users
type UserRepositoryInterface interface {
	Create(ctx context.Context, user *types.User) error
	GetByID(ctx context.Context, id string) (*types.User, error)
	GetByUsername(ctx context.Context, username string) (*types.User, error)
	ListActive(ctx context.Context) ([]*types.User, error)
	List(ctx context.Context, role types.UserRole) ([]*types.User, error)
	SetActive(ctx context.Context, id string, active bool) error
	Count(ctx context.Context) (int, error)
}

// RequestRepositoryInterface defines the persistence operations on requests
// and their reports. Every listing has a fixed order.
type RequestRepositoryInterface interface {
	Create(ctx context.Context, req *types.Request) error
	GetByID(ctx context.Context, id string) (*types.Request, error)
	// ListByDoctor returns the doctor's requests newest first
	ListByDoctor(ctx context.Context, doctorID string) ([]*types.Request, error)
	// ListPending returns pending requests oldest first
	ListPending(ctx context.Context) ([]*types.Request, error)
	List(ctx context.Context, filters *types.RequestFilters) ([]*types.Request, error)
	// CompleteWithReport flips a pending request to completed and stores its
	// report atomically. ErrNotPending when the request is not pending.
	CompleteWithReport(ctx context.Context, report *types.Report) error
	GetReport(ctx context.Context, requestID string) (*types.Report, error)
	GetReports(ctx context.Context, requestIDs []string) (map[string]*types.Report, error)
}

// HistoryRepositoryInterface is the append-only request history ledger
type HistoryRepositoryInterface interface {
	Append(ctx context.Context, entry *types.HistoryEntry) error
	// ListForRequest returns up to limit entries, newest first
	ListForRequest(ctx context.Context, requestID string, limit int) ([]*types.HistoryEntry, error)
	// ListForRequests is ListForRequest for several requests in one query
	ListForRequests(ctx context.Context, requestIDs []string, limit int) (map[string][]*types.HistoryEntry, error)
}

// TokenRepositoryInterface tracks session tokens ended by logout
type TokenRepositoryInterface interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
