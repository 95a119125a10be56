package backup

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/avlasov/munipoints/internal/database"
)

type fakeS3 struct {
	puts    []string
	deletes []string
	listed  []string
}

func (f *fakeS3) PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts = append(f.puts, aws.ToString(input.Key))
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var contents []types.Object
	for _, key := range f.listed {
		contents = append(contents, types.Object{Key: aws.String(key)})
	}
	return &s3.ListObjectsV2Output{Contents: contents}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deletes = append(f.deletes, aws.ToString(input.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestDisabledWithoutCredentials(t *testing.T) {
	m := NewManager(Config{Bucket: "b"}, nil, slog.Default())
	if m.Enabled() {
		t.Error("manager should be disabled without credentials")
	}
	if err := m.RunNow(context.Background()); err == nil {
		t.Error("RunNow should fail when disabled")
	}
}

func TestStartTakesImmediateSnapshot(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	fake := &fakeS3{}
	m := &Manager{
		cfg:    Config{Bucket: "b"},
		db:     db,
		client: fake,
		log:    slog.Default(),
	}

	m.Start(context.Background())
	time.Sleep(100 * time.Millisecond)
	m.Stop()

	// The first snapshot goes out at startup, not a day later.
	if len(fake.puts) != 1 {
		t.Errorf("puts = %v, want the startup snapshot", fake.puts)
	}
}

func TestRunNowUploadsAndPrunes(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	fake := &fakeS3{listed: []string{
		"backups/munipoints-2026-01-01T000000Z.db",
		"backups/munipoints-2026-01-02T000000Z.db",
		"backups/munipoints-2026-01-03T000000Z.db",
	}}
	m := &Manager{
		cfg:    Config{Bucket: "b", Keep: 2},
		db:     db,
		client: fake,
		log:    slog.Default(),
	}

	if err := m.RunNow(context.Background()); err != nil {
		t.Fatalf("run now: %v", err)
	}

	if len(fake.puts) != 1 {
		t.Fatalf("puts = %v, want one upload", fake.puts)
	}

	// Oldest snapshot beyond the retention count is pruned.
	if len(fake.deletes) != 1 || fake.deletes[0] != "backups/munipoints-2026-01-01T000000Z.db" {
		t.Errorf("deletes = %v, want only the oldest", fake.deletes)
	}
}
