// Package archive exports conversation transcripts to S3 as one JSONL object
// per tenant and UTC day.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/storefront-ai/internal/contacts"
	"github.com/wolfman30/storefront-ai/pkg/logging"
)

const schemaVersion = "1"

// S3API is the subset of the S3 client used for uploads.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Line is one archived turn.
type Line struct {
	Version    string    `json:"v"`
	TurnID     string    `json:"turn_id"`
	ContactID  string    `json:"contact_id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	ExternalID string    `json:"external_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TranscriptArchiver copies a day of turns into the bucket. Objects are
// overwritten on rerun so a day can be archived again after a failure.
type TranscriptArchiver struct {
	turns  contacts.TurnExporter
	client S3API
	bucket string
	logger *logging.Logger
	now    func() time.Time
}

func NewTranscriptArchiver(turns contacts.TurnExporter, client S3API, bucket string, logger *logging.Logger) *TranscriptArchiver {
	if turns == nil {
		panic("archive: turn exporter cannot be nil")
	}
	if client == nil {
		panic("archive: s3 client cannot be nil")
	}
	if bucket == "" {
		panic("archive: bucket cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TranscriptArchiver{turns: turns, client: client, bucket: bucket, logger: logger, now: time.Now}
}

// ObjectKey returns the S3 key for an org's transcript on day.
func ObjectKey(orgID string, day time.Time) string {
	day = day.UTC()
	return fmt.Sprintf("transcripts/v%s/%s/%04d/%02d/%02d.jsonl", schemaVersion, orgID, day.Year(), day.Month(), day.Day())
}

// ArchivePreviousDay archives yesterday in UTC.
func (a *TranscriptArchiver) ArchivePreviousDay(ctx context.Context) (int, error) {
	return a.ArchiveDay(ctx, a.now().UTC().AddDate(0, 0, -1))
}

// ArchiveDay writes one object per org with turns on the UTC day containing
// day and returns how many objects were written. A failed upload does not
// stop the remaining orgs.
func (a *TranscriptArchiver) ArchiveDay(ctx context.Context, day time.Time) (int, error) {
	day = day.UTC()
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	turns, err := a.turns.TurnsBetween(ctx, from, from.AddDate(0, 0, 1))
	if err != nil {
		return 0, fmt.Errorf("archive: list turns: %w", err)
	}

	var (
		written int
		errs    []error
	)
	for start := 0; start < len(turns); {
		end := start
		for end < len(turns) && turns[end].OrgID == turns[start].OrgID {
			end++
		}
		orgID := turns[start].OrgID
		if err := a.put(ctx, orgID, from, turns[start:end]); err != nil {
			errs = append(errs, err)
		} else {
			written++
		}
		start = end
	}
	a.logger.Info("transcripts archived", "day", from.Format(time.DateOnly), "turns", len(turns), "objects", written, "failed", len(errs))
	return written, errors.Join(errs...)
}

func (a *TranscriptArchiver) put(ctx context.Context, orgID string, day time.Time, turns []contacts.Turn) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, t := range turns {
		line := Line{
			Version:    schemaVersion,
			TurnID:     t.ID,
			ContactID:  t.ContactID,
			Role:       string(t.Role),
			Content:    t.Content,
			ExternalID: t.ExternalID,
			CreatedAt:  t.CreatedAt.UTC(),
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("archive: encode turn %s: %w", t.ID, err)
		}
	}

	key := ObjectKey(orgID, day)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		a.logger.Warn("transcript upload failed", "org_id", orgID, "s3_key", key, "error", err)
		return fmt.Errorf("archive: s3 put %s: %w", key, err)
	}
	return nil
}
