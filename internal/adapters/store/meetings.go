package store

import (
	"context"
	"errors"

	"github.com/dkeye/Lectern/internal/domain"
	"gorm.io/gorm"
)

type Meetings struct {
	db *gorm.DB
}

func NewMeetings(db *gorm.DB) *Meetings { return &Meetings{db: db} }

func (s *Meetings) Create(ctx context.Context, m *domain.Meeting) error {
	m.Version = 1
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return storageErr("create meeting", err)
	}
	return nil
}

func (s *Meetings) Get(ctx context.Context, id domain.MeetingID) (*domain.Meeting, error) {
	var m domain.Meeting
	err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrMeetingNotFound
	}
	if err != nil {
		return nil, storageErr("get meeting", err)
	}
	return &m, nil
}

// Save writes m only when the stored version still equals m.Version.
func (s *Meetings) Save(ctx context.Context, m *domain.Meeting) error {
	next := *m
	next.Version = m.Version + 1
	if err := saveVersioned(ctx, s.db, &next, string(m.ID), m.Version, domain.ErrMeetingNotFound); err != nil {
		return err
	}
	*m = next
	return nil
}

func (s *Meetings) ListByStatus(ctx context.Context, status domain.MeetingStatus) ([]*domain.Meeting, error) {
	var out []*domain.Meeting
	if err := s.db.WithContext(ctx).Where("status = ?", status).Order("created_at").Find(&out).Error; err != nil {
		return nil, storageErr("list meetings", err)
	}
	return out, nil
}
