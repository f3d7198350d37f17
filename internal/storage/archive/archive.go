// Package archive keeps a cold copy of every signal list snapshot.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/newthinker/nextsignal/internal/config"
)

// Storage defines the interface for cold/archive storage backends
type Storage interface {
	// Write stores data at the given path
	Write(ctx context.Context, path string, data []byte) error

	// Read retrieves data from the given path
	Read(ctx context.Context, path string) ([]byte, error)

	// List returns all paths matching the prefix
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the data at the given path
	Delete(ctx context.Context, path string) error

	// Exists checks if data exists at the given path
	Exists(ctx context.Context, path string) (bool, error)
}

const snapshotRoot = "snapshots"

// SnapshotPath returns the archive path for a snapshot fetched at t.
func SnapshotPath(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s/%s/%s.json", snapshotRoot, t.Format("2006/01/02"), t.Format("150405"))
}

// DayPrefix returns the prefix under which all snapshots of t's day live.
func DayPrefix(t time.Time) string {
	return snapshotRoot + "/" + t.UTC().Format("2006/01/02")
}

// New builds the archive backend named by cfg.Type. An empty type means no
// archive and returns a nil Storage.
func New(cfg config.ArchiveConfig) (Storage, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "localfs":
		return NewLocalFS(cfg.Path)
	case "s3":
		return NewS3(S3Config{
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown archive type %q", cfg.Type)
	}
}
