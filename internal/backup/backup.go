// Package backup ships database snapshots to S3-compatible storage. Backups
// are disabled when no credentials are configured.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const keyPrefix = "backups/"

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Config holds the S3 target and snapshot source.
type Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Keep      int // newest snapshots to retain
	DBPath    string
}

// Manager takes a daily snapshot of the live database and uploads it,
// pruning old snapshots past the retention count.
type Manager struct {
	mu     sync.Mutex
	cfg    Config
	db     *sql.DB
	client s3Client
	log    *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(cfg Config, db *sql.DB, log *slog.Logger) *Manager {
	m := &Manager{cfg: cfg, db: db, log: log}
	if cfg.Bucket != "" && cfg.AccessKey != "" && cfg.SecretKey != "" {
		m.client = newS3Client(cfg)
	}
	return m
}

func newS3Client(cfg Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Enabled reports whether an S3 target is configured.
func (m *Manager) Enabled() bool {
	return m.client != nil
}

// Start begins the daily snapshot loop, taking the first snapshot right
// away. A no-op when disabled.
func (m *Manager) Start(ctx context.Context) {
	if !m.Enabled() {
		m.log.Info("backup disabled: no S3 target configured")
		return
	}

	m.mu.Lock()
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		if err := m.RunNow(ctx); err != nil {
			m.log.Error("startup backup failed", "err", err)
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.RunNow(ctx); err != nil {
					m.log.Error("scheduled backup failed", "err", err)
				}
			}
		}
	}()
}

// Stop gracefully stops the snapshot loop.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// RunNow takes one snapshot and uploads it, then prunes old snapshots.
func (m *Manager) RunNow(ctx context.Context) error {
	if !m.Enabled() {
		return fmt.Errorf("backup not configured: S3 credentials missing")
	}

	timestamp := time.Now().UTC().Format("2006-01-02T150405Z")
	key := fmt.Sprintf("%smunipoints-%s.db", keyPrefix, timestamp)
	snapshot := filepath.Join(os.TempDir(), fmt.Sprintf("munipoints-backup-%s.db", timestamp))
	defer os.Remove(snapshot)

	// VACUUM INTO produces a consistent single-file copy regardless of WAL
	// state.
	if _, err := m.db.ExecContext(ctx, "VACUUM INTO ?", snapshot); err != nil {
		return fmt.Errorf("snapshot database: %w", err)
	}

	f, err := os.Open(snapshot)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat snapshot: %w", err)
	}

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(stat.Size()),
	})
	if err != nil {
		return fmt.Errorf("upload snapshot: %w", err)
	}
	m.log.Info("backup uploaded", "key", key, "bytes", stat.Size())

	if err := m.prune(ctx); err != nil {
		m.log.Error("backup prune failed", "err", err)
	}
	return nil
}

// prune deletes the oldest snapshots beyond the retention count. Snapshot
// keys embed a sortable UTC timestamp, so lexical order is age order.
func (m *Manager) prune(ctx context.Context) error {
	keep := m.cfg.Keep
	if keep <= 0 {
		return nil
	}

	out, err := m.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(m.cfg.Bucket),
		Prefix: aws.String(keyPrefix),
	})
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}

	keys := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		keys = append(keys, aws.ToString(obj.Key))
	}
	if len(keys) <= keep {
		return nil
	}
	sort.Strings(keys)

	for _, key := range keys[:len(keys)-keep] {
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.Bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.log.Error("backup prune: delete snapshot", "key", key, "err", err)
		}
	}
	return nil
}
