package domain

import (
	"strings"
	"time"
)

const (
	RecordingRetention = 72 * time.Hour
	RecordingKeyPrefix = "recordings/"
)

type RecordingID string

type RecordingStatus string

const (
	RecordingActive    RecordingStatus = "recording"
	RecordingCompleted RecordingStatus = "completed"
	RecordingFailed    RecordingStatus = "failed"
)

// RecordingMetadata is filled only by a successful finalize.
type RecordingMetadata struct {
	Size        int64   `json:"size"`
	Format      string  `gorm:"size:16" json:"format"`
	ContentType string  `gorm:"size:64" json:"contentType"`
	Duration    float64 `json:"duration"`
}

type Recording struct {
	ID                    RecordingID       `gorm:"primaryKey;size:36" json:"id"`
	MeetingID             MeetingID         `gorm:"size:36;not null;index" json:"meetingId"`
	HostID                UserID            `gorm:"size:64;not null;index" json:"hostId"`
	StudentID             UserID            `gorm:"size:64" json:"studentId,omitempty"`
	StreamKey             string            `gorm:"size:255;not null;uniqueIndex" json:"streamKey"`
	FileURL               string            `gorm:"size:255" json:"fileUrl"`
	Status                RecordingStatus   `gorm:"size:16;not null;index" json:"status"`
	StartTime             time.Time         `gorm:"not null" json:"startTime"`
	EndTime               *time.Time        `json:"endTime,omitempty"`
	Duration              float64           `json:"duration"`
	Error                 string            `gorm:"type:text" json:"error,omitempty"`
	Metadata              RecordingMetadata `gorm:"embedded;embeddedPrefix:meta_" json:"metadata"`
	IsPrivateConversation bool              `json:"isPrivateConversation"`
	AccessibleTo          UserSet           `gorm:"serializer:json" json:"accessibleTo"`
	Version               int               `gorm:"not null" json:"version"`
	CreatedAt             time.Time         `gorm:"index" json:"createdAt"`
	UpdatedAt             time.Time         `json:"updatedAt"`
}

// Normalize recomputes derived fields. Stores call it before every save so
// AccessibleTo cannot drift from HostID/StudentID.
func (r *Recording) Normalize() {
	if r.IsPrivateConversation && r.StudentID != "" {
		r.AccessibleTo = UserSet{r.HostID, r.StudentID}
	} else {
		r.AccessibleTo = r.AccessibleTo.Add(r.HostID)
	}
	if r.FileURL != "" && !strings.HasPrefix(r.FileURL, RecordingKeyPrefix) {
		r.FileURL = RecordingKeyPrefix + r.FileURL
	}
}

func (r *Recording) Validate() error {
	if r.MeetingID == "" || r.HostID == "" || r.StreamKey == "" {
		return ErrMissingField
	}
	if r.IsPrivateConversation && r.StudentID == "" {
		return ErrMissingField
	}
	return nil
}

func (r *Recording) CanAccess(u UserID) bool { return r.AccessibleTo.Contains(u) }

// Complete records a successful finalize of the stream into key.
func (r *Recording) Complete(key string, size int64, format, contentType string, now time.Time) {
	t := now
	r.Status = RecordingCompleted
	r.EndTime = &t
	r.Duration = now.Sub(r.StartTime).Seconds()
	r.FileURL = key
	r.Error = ""
	r.Metadata = RecordingMetadata{
		Size:        size,
		Format:      format,
		ContentType: contentType,
		Duration:    r.Duration,
	}
}

func (r *Recording) Fail(reason string, now time.Time) {
	t := now
	r.Status = RecordingFailed
	r.EndTime = &t
	r.Duration = now.Sub(r.StartTime).Seconds()
	r.Error = reason
}

// Expired reports whether the recording is past the retention window.
func (r *Recording) Expired(now time.Time, retention time.Duration) bool {
	return now.Sub(r.CreatedAt) > retention
}

// ObjectKey is the durable key to delete or read: the finalized file when
// present, the stream key otherwise.
func (r *Recording) ObjectKey() string {
	if r.FileURL != "" {
		return r.FileURL
	}
	return r.StreamKey
}
