package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/Lectern/internal/adapters/auth"
	"github.com/dkeye/Lectern/internal/adapters/blob"
	"github.com/dkeye/Lectern/internal/adapters/store"
	"github.com/dkeye/Lectern/internal/app"
	"github.com/dkeye/Lectern/internal/app/expiry"
	"github.com/dkeye/Lectern/internal/app/lifecycle"
	"github.com/dkeye/Lectern/internal/app/orch"
	"github.com/dkeye/Lectern/internal/app/recording"
	"github.com/dkeye/Lectern/internal/app/sfu"
	"github.com/dkeye/Lectern/internal/config"
	"github.com/dkeye/Lectern/internal/core"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// application holds the wired services shared by serve and sweep.
type application struct {
	cfg        *config.Config
	db         *gorm.DB
	auth       *auth.JWT
	blobs      core.BlobStore
	blobRoute  gin.HandlerFunc
	meetings   *lifecycle.Service
	recordings *recording.Pipeline
	registry   *app.Registry
	orch       *orch.Orchestrator
	scheduler  *expiry.Scheduler
}

func newBlobStore(ctx context.Context, cfg *config.Config) (core.BlobStore, gin.HandlerFunc, error) {
	sc := cfg.Storage
	if sc.Driver == "s3" {
		s3, err := blob.NewS3(ctx, blob.S3Options{Bucket: sc.Bucket, Region: sc.Region, Prefix: sc.Prefix, Endpoint: sc.Endpoint})
		if err != nil {
			return nil, nil, err
		}
		return s3, nil, nil
	}
	fs, err := blob.NewFS(sc.Root, sc.BaseURL, []byte(cfg.Secret))
	if err != nil {
		return nil, nil, err
	}
	return fs, fs.Handler, nil
}

func newApplication(ctx context.Context, cfg *config.Config) (*application, error) {
	db, err := store.Connect(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(db); err != nil {
		return nil, err
	}
	blobs, blobRoute, err := newBlobStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
	}

	a := &application{cfg: cfg, db: db, blobs: blobs, blobRoute: blobRoute}
	a.auth = auth.NewJWT([]byte(cfg.JWTSecret), cfg.JWTIssuer)
	a.meetings = lifecycle.NewService(store.NewMeetings(db), lifecycle.Options{
		MaxDuration:     cfg.Meeting.MaxDuration,
		MaxParticipants: cfg.Meeting.MaxParticipants,
		ArchiveAfter:    cfg.Meeting.ArchiveAfter,
	}, time.Now)
	a.recordings = recording.NewPipeline(store.NewRecordings(db), blobs, a.meetings, recording.Options{
		BufferChunks:  cfg.Recording.BufferChunks,
		WriteTimeout:  cfg.Recording.WriteTimeout,
		MaxChunkBytes: cfg.Recording.MaxChunkBytes,
		Retention:     cfg.Recording.Retention,
		Format:        cfg.Recording.Format,
		ContentType:   cfg.Recording.ContentType,
		URLTTL:        cfg.Recording.URLTTL,
	}, time.Now)
	a.registry = app.NewRegistry(a.auth, app.WithLivenessTimeout(cfg.Liveness.Timeout))
	a.orch = orch.New(a.registry, a.meetings, a.recordings, app.PolicyByName(cfg.Policy), sfu.NewRelayManager())

	a.scheduler, err = expiry.New(expiry.Specs{
		Meetings:   cfg.Expiry.Meetings,
		Recordings: cfg.Expiry.Recordings,
		Archive:    cfg.Expiry.Archive,
		Liveness:   cfg.Liveness.Interval,
	}, a.meetings, a.recordings, a.registry)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// close finalizes open recordings and releases the database.
func (a *application) close(ctx context.Context) {
	a.recordings.Shutdown(ctx)
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
