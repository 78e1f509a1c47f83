package blob

import (
	"context"
	"errors"
	"io"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dkeye/Lectern/internal/core"
	"github.com/dkeye/Lectern/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type S3Options struct {
	Bucket   string
	Region   string
	Prefix   string
	Endpoint string // S3-compatible endpoints use path-style addressing
}

// S3 streams objects with multipart uploads. An aborted stream still
// completes its upload, so the object holds every byte written before the
// failure.
type S3 struct {
	client  *s3.Client
	presign *s3.PresignClient
	opts    S3Options
	logger  zerolog.Logger
}

func NewS3(ctx context.Context, opts S3Options) (*S3, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, domain.Wrap(domain.KindStorage, "load aws config", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3{
		client:  client,
		presign: s3.NewPresignClient(client),
		opts:    opts,
		logger:  log.With().Str("module", "adapters.blob").Str("driver", "s3").Str("bucket", opts.Bucket).Logger(),
	}, nil
}

func (s *S3) objectKey(key string) string {
	if s.opts.Prefix == "" {
		return key
	}
	return path.Join(s.opts.Prefix, key)
}

func (s *S3) Create(ctx context.Context, key, contentType string) (core.BlobWriter, error) {
	pr, pw := io.Pipe()
	upCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w := &s3Writer{pw: pw, key: key, cancel: cancel, done: make(chan struct{}), logger: s.logger}
	uploader := manager.NewUploader(s.client)
	go func() {
		defer close(w.done)
		_, w.err = uploader.Upload(upCtx, &s3.PutObjectInput{
			Bucket:      aws.String(s.opts.Bucket),
			Key:         aws.String(s.objectKey(key)),
			Body:        pr,
			ContentType: aws.String(contentType),
		})
		_ = pr.CloseWithError(w.err)
	}()
	return w, nil
}

type s3Writer struct {
	mu       sync.Mutex
	pw       *io.PipeWriter
	key      string
	size     int64
	finished bool
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
	logger   zerolog.Logger
}

func (w *s3Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished {
		return 0, io.ErrClosedPipe
	}
	n, err := w.pw.Write(p)
	w.size += int64(n)
	if err != nil {
		return n, domain.Wrap(domain.KindStorage, "upload part", err)
	}
	return n, nil
}

func (w *s3Writer) Commit() (core.BlobObject, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished {
		return core.BlobObject{}, io.ErrClosedPipe
	}
	w.finished = true
	_ = w.pw.Close()
	<-w.done
	w.cancel()
	if w.err != nil {
		return core.BlobObject{}, domain.Wrap(domain.KindStorage, "complete upload", w.err)
	}
	return core.BlobObject{Key: w.key, Size: w.size}, nil
}

// Abort finishes the upload with what was written so far.
func (w *s3Writer) Abort(cause error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished {
		return
	}
	w.finished = true
	if cause == nil {
		cause = errors.New("aborted")
	}
	_ = w.pw.Close()
	<-w.done
	w.cancel()
	if w.err != nil {
		w.logger.Error().Err(w.err).AnErr("cause", cause).Str("key", w.key).Int64("size", w.size).Msg("partial upload failed")
		return
	}
	w.logger.Warn().Err(cause).Str("key", w.key).Int64("size", w.size).Msg("object aborted, partial object kept")
}

func (s *S3) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(s.objectKey(key)),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", domain.Wrap(domain.KindStorage, "presign object", err)
	}
	return req.URL, nil
}

func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err == nil {
		return true, nil
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return false, nil
	}
	return false, domain.Wrap(domain.KindStorage, "head object", err)
}

func (s *S3) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return domain.Wrap(domain.KindStorage, "delete object", err)
	}
	return nil
}
