package core

import (
	"context"
	"io"
	"time"

	"github.com/dkeye/Lectern/internal/domain"
)

//go:generate mockgen -destination=mock/mock_ports.go -package=mock github.com/dkeye/Lectern/internal/core Authenticator

// Credentials is the decoded channel admission bundle.
type Credentials struct {
	Token     string           `json:"token"`
	UserID    domain.UserID    `json:"userId"`
	MeetingID domain.MeetingID `json:"meetingId"`
	Role      domain.Role      `json:"role"`
	Username  string           `json:"username"`
}

// Claims is what a verified token asserts about its bearer.
type Claims struct {
	UserID    domain.UserID
	Role      domain.Role
	Username  string
	ExpiresAt time.Time
}

// Authenticator validates externally issued tokens.
type Authenticator interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

// MeetingStore persists meetings as single versioned documents.
// Save fails with domain.ErrVersionConflict when m.Version is stale and
// bumps m.Version on success.
type MeetingStore interface {
	Create(ctx context.Context, m *domain.Meeting) error
	Get(ctx context.Context, id domain.MeetingID) (*domain.Meeting, error)
	Save(ctx context.Context, m *domain.Meeting) error
	ListByStatus(ctx context.Context, status domain.MeetingStatus) ([]*domain.Meeting, error)
}

type RecordingStore interface {
	Create(ctx context.Context, r *domain.Recording) error
	Get(ctx context.Context, id domain.RecordingID) (*domain.Recording, error)
	Save(ctx context.Context, r *domain.Recording) error
	Delete(ctx context.Context, id domain.RecordingID) error
	ListByMeeting(ctx context.Context, id domain.MeetingID) ([]*domain.Recording, error)
	ListCreatedBefore(ctx context.Context, t time.Time) ([]*domain.Recording, error)
}

// BlobObject describes a finalized durable object.
type BlobObject struct {
	Key  string
	Size int64
}

// BlobWriter is an open write stream into durable storage. Exactly one of
// Commit or Abort must be called; both release the stream.
type BlobWriter interface {
	io.Writer
	Commit() (BlobObject, error)
	Abort(cause error)
}

// BlobStore is the durable storage capability.
type BlobStore interface {
	Create(ctx context.Context, key, contentType string) (BlobWriter, error)
	// SignedURL returns a read-only reference to key valid for ttl.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}
