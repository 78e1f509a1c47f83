package store

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Lectern/internal/domain"
	"gorm.io/gorm"
)

type Recordings struct {
	db *gorm.DB
}

func NewRecordings(db *gorm.DB) *Recordings { return &Recordings{db: db} }

func (s *Recordings) Create(ctx context.Context, r *domain.Recording) error {
	r.Normalize()
	r.Version = 1
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return storageErr("create recording", err)
	}
	return nil
}

func (s *Recordings) Get(ctx context.Context, id domain.RecordingID) (*domain.Recording, error) {
	var r domain.Recording
	err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRecordingNotFound
	}
	if err != nil {
		return nil, storageErr("get recording", err)
	}
	return &r, nil
}

func (s *Recordings) Save(ctx context.Context, r *domain.Recording) error {
	r.Normalize()
	next := *r
	next.Version = r.Version + 1
	if err := saveVersioned(ctx, s.db, &next, string(r.ID), r.Version, domain.ErrRecordingNotFound); err != nil {
		return err
	}
	*r = next
	return nil
}

func (s *Recordings) Delete(ctx context.Context, id domain.RecordingID) error {
	res := s.db.WithContext(ctx).Delete(&domain.Recording{}, "id = ?", id)
	if res.Error != nil {
		return storageErr("delete recording", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrRecordingNotFound
	}
	return nil
}

func (s *Recordings) ListByMeeting(ctx context.Context, id domain.MeetingID) ([]*domain.Recording, error) {
	var out []*domain.Recording
	if err := s.db.WithContext(ctx).Where("meeting_id = ?", id).Order("created_at").Find(&out).Error; err != nil {
		return nil, storageErr("list recordings", err)
	}
	return out, nil
}

func (s *Recordings) ListCreatedBefore(ctx context.Context, t time.Time) ([]*domain.Recording, error) {
	var out []*domain.Recording
	if err := s.db.WithContext(ctx).Where("created_at < ?", t).Order("created_at").Find(&out).Error; err != nil {
		return nil, storageErr("list expired recordings", err)
	}
	return out, nil
}
