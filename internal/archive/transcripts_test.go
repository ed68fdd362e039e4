package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/storefront-ai/internal/contacts"
	"github.com/wolfman30/storefront-ai/pkg/logging"
)

type fakeS3 struct {
	objects map[string][]byte
	failKey string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if *input.Key == f.failKey {
		return nil, errors.New("access denied")
	}
	body, _ := io.ReadAll(input.Body)
	f.objects[*input.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func seedTurns(t *testing.T, day time.Time) *contacts.MemoryRepository {
	t.Helper()
	repo := contacts.NewMemoryRepository()
	ctx := context.Background()
	for _, seed := range []struct {
		org, address, content string
		at                    time.Time
	}{
		{"org-1", "+1555", "do you ship to Lisbon?", day.Add(9 * time.Hour)},
		{"org-1", "+1555", "we do", day.Add(9*time.Hour + time.Second)},
		{"org-2", "+1666", "hi", day.Add(10 * time.Hour)},
		{"org-2", "+1666", "tomorrow", day.AddDate(0, 0, 1)},
	} {
		c, err := repo.Resolve(ctx, seed.org, seed.address, "")
		require.NoError(t, err)
		require.NoError(t, repo.AppendTurn(ctx, contacts.Turn{ContactID: c.ID, OrgID: seed.org, Role: contacts.RoleUser, Content: seed.content, CreatedAt: seed.at}))
	}
	return repo
}

func TestObjectKey(t *testing.T) {
	day := time.Date(2026, 3, 7, 23, 30, 0, 0, time.FixedZone("PST", -8*3600))
	assert.Equal(t, "transcripts/v1/org-1/2026/03/08.jsonl", ObjectKey("org-1", day))
}

func TestArchiveDayWritesOneObjectPerOrg(t *testing.T) {
	day := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	client := newFakeS3()
	a := NewTranscriptArchiver(seedTurns(t, day), client, "bucket", logging.Default())

	written, err := a.ArchiveDay(context.Background(), day.Add(15*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, written)
	require.Len(t, client.objects, 2)

	body := client.objects["transcripts/v1/org-1/2026/03/07.jsonl"]
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 2)
	var first Line
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "1", first.Version)
	assert.Equal(t, "do you ship to Lisbon?", first.Content)
	assert.Equal(t, "USER", first.Role)

	assert.Equal(t, 1, bytes.Count(client.objects["transcripts/v1/org-2/2026/03/07.jsonl"], []byte("\n")))
}

func TestArchiveDayContinuesPastFailedUpload(t *testing.T) {
	day := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	client := newFakeS3()
	client.failKey = "transcripts/v1/org-1/2026/03/07.jsonl"
	a := NewTranscriptArchiver(seedTurns(t, day), client, "bucket", logging.Default())

	written, err := a.ArchiveDay(context.Background(), day)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	assert.Equal(t, 1, written)
	assert.Contains(t, client.objects, "transcripts/v1/org-2/2026/03/07.jsonl")
}

func TestArchivePreviousDay(t *testing.T) {
	day := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	client := newFakeS3()
	a := NewTranscriptArchiver(seedTurns(t, day), client, "bucket", logging.Default())
	a.now = func() time.Time { return day.Add(24*time.Hour + 30*time.Minute) }

	written, err := a.ArchivePreviousDay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, written)
}

func TestArchiveDayWithoutTurnsWritesNothing(t *testing.T) {
	client := newFakeS3()
	a := NewTranscriptArchiver(contacts.NewMemoryRepository(), client, "bucket", nil)

	written, err := a.ArchiveDay(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, written)
	assert.Empty(t, client.objects)
}

func TestNewTranscriptArchiverPanicsWithoutBucket(t *testing.T) {
	assert.Panics(t, func() {
		NewTranscriptArchiver(contacts.NewMemoryRepository(), newFakeS3(), "", nil)
	})
}
