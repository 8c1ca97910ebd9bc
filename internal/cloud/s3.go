package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/clock"
	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/domain"
)

type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver stores a device's history as one JSON object per reset.
type S3Archiver struct {
	api    S3API
	bucket string
	clock  clock.Clock
}

func NewS3Archiver(api S3API, bucket string, clk clock.Clock) *S3Archiver {
	if clk == nil {
		clk = clock.New()
	}
	return &S3Archiver{api: api, bucket: bucket, clock: clk}
}

type archive struct {
	Device     string           `json:"device"`
	ArchivedAt time.Time        `json:"archivedAt"`
	Readings   []domain.Reading `json:"readings"`
}

// ArchiveKey is the object key a history dump taken at t is stored under.
func ArchiveKey(device string, t time.Time) string {
	return fmt.Sprintf("history/%s/%d.json", device, t.UnixNano())
}

func (a *S3Archiver) ArchiveHistory(ctx context.Context, device string, readings []domain.Reading) error {
	now := a.clock.Now().UTC()
	data, err := json.Marshal(archive{Device: device, ArchivedAt: now, Readings: readings})
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(ArchiveKey(device, now)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"archived-at": now.Format(time.RFC3339),
			"device":      device,
		},
	}

	if _, err := a.api.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload history archive: %w", err)
	}
	return nil
}
