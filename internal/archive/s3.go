// Package archive uploads daily event-log snapshots to object storage so
// the database retention window can stay short.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/hospital-e/supply-service/internal/store"
)

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Archiver writes one JSON object per day of event-log entries to paths
// like s3://<bucket>/<prefix>/eventlog/YYYY/MM/DD.json.
type S3Archiver struct {
	bucket   string
	prefix   string
	store    store.Store
	uploader uploader
	logger   *log.Logger

	archivedThrough time.Time
}

// NewS3Archiver creates an archiver. Region and credentials come from the
// environment via the SDK's default chain.
func NewS3Archiver(ctx context.Context, st store.Store, bucket, prefix string, logger *log.Logger) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	if logger == nil {
		logger = log.New(os.Stdout, "[archive] ", log.LstdFlags)
	}
	return &S3Archiver{
		bucket:   bucket,
		prefix:   prefix,
		store:    st,
		uploader: manager.NewUploader(client),
		logger:   logger,
	}, nil
}

// ArchiveDay uploads all event-log entries for the given UTC day and returns
// the object key, or "" when the day had no entries.
func (a *S3Archiver) ArchiveDay(ctx context.Context, day time.Time) (string, error) {
	from := day.UTC().Truncate(24 * time.Hour)
	to := from.Add(24 * time.Hour)

	events, err := a.store.ListEventsBetween(ctx, from, to)
	if err != nil {
		return "", fmt.Errorf("list events for %s: %w", from.Format("2006-01-02"), err)
	}
	if len(events) == 0 {
		return "", nil
	}

	body, err := json.Marshal(events)
	if err != nil {
		return "", fmt.Errorf("marshal events: %w", err)
	}

	year, month, dayOfMonth := from.Date()
	objectKey := path.Join(a.prefix, "eventlog",
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d.json", dayOfMonth),
	)

	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(a.bucket),
		Key:                  aws.String(objectKey),
		Body:                 bytes.NewReader(body),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload: %w", err)
	}
	a.logger.Printf("archived %d event(s) to s3://%s/%s", len(events), a.bucket, objectKey)
	return objectKey, nil
}

// Run archives each completed UTC day once, checking on the given interval
// (default 1h) until ctx is cancelled.
func (a *S3Archiver) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	// start with yesterday so the first tick uploads the last completed day
	a.archivedThrough = time.Now().UTC().Truncate(24 * time.Hour).Add(-24 * time.Hour)

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		today := time.Now().UTC().Truncate(24 * time.Hour)
		for day := a.archivedThrough; day.Before(today); day = day.Add(24 * time.Hour) {
			if _, err := a.ArchiveDay(ctx, day); err != nil {
				a.logger.Printf("archive %s: %v", day.Format("2006-01-02"), err)
				break
			}
			a.archivedThrough = day.Add(24 * time.Hour)
		}
	}
}
