// Package backup takes consistent snapshots of the ledger database, encrypts
// them with a passphrase and keeps them in S3-compatible object storage.
package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pauljmillar/survey-sub001/internal/database"
)

// s3Client is the subset of the S3 API the manager uses.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string
}

func (c S3Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

var ErrNotConfigured = errors.New("backup not configured: bucket and credentials required")

// Object describes one stored snapshot.
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

type Manager struct {
	db     *sql.DB
	client s3Client
	bucket string
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

func NewManager(cfg S3Config, db *sql.DB, logger *slog.Logger) (*Manager, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	return newManager(newS3Client(cfg), cfg.Bucket, cfg.Prefix, db, logger), nil
}

func newManager(client s3Client, bucket, prefix string, db *sql.DB, logger *slog.Logger) *Manager {
	return &Manager{
		db:     db,
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.With("component", "backup"),
		now:    time.Now,
	}
}

func newS3Client(cfg S3Config) *s3.Client {
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

func (m *Manager) key(name string) string {
	if m.prefix == "" {
		return name
	}
	return path.Join(m.prefix, name)
}

// Snapshot writes a transactionally consistent copy of db to dst, which must
// not exist yet.
func Snapshot(ctx context.Context, db *sql.DB, dst string) error {
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", dst); err != nil {
		return fmt.Errorf("vacuum into: %w", err)
	}
	return nil
}

// Verify opens the database file at p and runs an integrity check.
// It returns the schema version recorded by the migrations.
func Verify(ctx context.Context, p string) (int64, error) {
	db, err := sql.Open("sqlite", p)
	if err != nil {
		return 0, fmt.Errorf("open snapshot: %w", err)
	}
	defer db.Close()

	var integrity string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		return 0, fmt.Errorf("integrity check: %w", err)
	}
	if integrity != "ok" {
		return 0, fmt.Errorf("integrity check failed: %s", integrity)
	}
	return database.Version(db)
}

// Run snapshots the database, encrypts the snapshot and uploads it.
func (m *Manager) Run(ctx context.Context, passphrase string) (*Object, error) {
	tmpDir, err := os.MkdirTemp("", "panelpoints-backup-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	snap := filepath.Join(tmpDir, "ledger.db")
	if err := Snapshot(ctx, m.db, snap); err != nil {
		return nil, err
	}
	plaintext, err := os.ReadFile(snap)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	sealed, err := Encrypt(plaintext, passphrase)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}

	now := m.now().UTC()
	key := m.key(fmt.Sprintf("ledger-%s.db.enc", now.Format("2006-01-02T150405Z")))
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
	})
	if err != nil {
		return nil, fmt.Errorf("upload to s3: %w", err)
	}

	m.logger.Info("backup uploaded", "key", key, "bytes", len(sealed))
	return &Object{Key: key, Size: int64(len(sealed)), LastModified: now}, nil
}

// List returns the stored snapshots under the manager's prefix.
func (m *Manager) List(ctx context.Context) ([]Object, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(m.bucket)}
	if m.prefix != "" {
		input.Prefix = aws.String(m.prefix + "/")
	}

	var objects []Object
	pages := s3.NewListObjectsV2Paginator(m.client, input)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, o := range page.Contents {
			objects = append(objects, Object{
				Key:          aws.ToString(o.Key),
				Size:         aws.ToInt64(o.Size),
				LastModified: aws.ToTime(o.LastModified),
			})
		}
	}
	return objects, nil
}

// Prune deletes snapshots older than retention and returns how many it
// removed. A failed delete is logged and skipped.
func (m *Manager) Prune(ctx context.Context, retention time.Duration) (int, error) {
	objects, err := m.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := m.now().Add(-retention)

	deleted := 0
	for _, o := range objects {
		if !o.LastModified.Before(cutoff) {
			continue
		}
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.bucket),
			Key:    aws.String(o.Key),
		}); err != nil {
			m.logger.Warn("delete old backup", "key", o.Key, "error", err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

// Restore downloads and decrypts the snapshot at key into dst and verifies
// it. The live database is never touched; swapping files is an operator step.
func (m *Manager) Restore(ctx context.Context, key, passphrase, dst string) (int64, error) {
	if _, err := os.Stat(dst); err == nil {
		return 0, fmt.Errorf("restore target %s already exists", dst)
	}

	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("download from s3: %w", err)
	}
	defer out.Body.Close()

	sealed, err := io.ReadAll(out.Body)
	if err != nil {
		return 0, fmt.Errorf("read download: %w", err)
	}
	plaintext, err := Decrypt(sealed, passphrase)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(dst, plaintext, 0o600); err != nil {
		return 0, fmt.Errorf("write restored db: %w", err)
	}

	version, err := Verify(ctx, dst)
	if err != nil {
		os.Remove(dst)
		return 0, err
	}
	m.logger.Info("backup restored", "key", key, "dst", dst, "schema_version", version)
	return version, nil
}
