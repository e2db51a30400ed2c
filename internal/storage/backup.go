package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bowerhall/docsage/internal/logger"
)

const (
	stampLayout = "20060102T150405Z"
	defaultKeep = 7
)

// Bucket is the object storage surface backups need.
type Bucket interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) error
	Download(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]FileInfo, error)
	Delete(ctx context.Context, name string) error
}

// Artifact is one file in a backup set.
type Artifact struct {
	Name        string
	ContentType string
	Read        func(ctx context.Context) ([]byte, error)
}

// FileArtifact backs up a file as it is on disk.
func FileArtifact(name, filePath, contentType string) Artifact {
	return Artifact{
		Name:        name,
		ContentType: contentType,
		Read: func(context.Context) ([]byte, error) {
			return os.ReadFile(filePath)
		},
	}
}

// SQLiteArtifact backs up a consistent copy of db taken with VACUUM INTO.
func SQLiteArtifact(name string, db *sql.DB) Artifact {
	return Artifact{
		Name:        name,
		ContentType: "application/vnd.sqlite3",
		Read: func(ctx context.Context) ([]byte, error) {
			dir, err := os.MkdirTemp("", "docsage-backup-")
			if err != nil {
				return nil, err
			}
			defer os.RemoveAll(dir)

			out := filepath.Join(dir, "copy.db")
			if _, err := db.ExecContext(ctx, `VACUUM INTO ?`, out); err != nil {
				return nil, fmt.Errorf("vacuum into: %w", err)
			}
			return os.ReadFile(out)
		},
	}
}

// Backups writes timestamped backup sets under a prefix and keeps the
// newest Keep of them.
type Backups struct {
	bucket Bucket
	prefix string
	keep   int
	now    func() time.Time
}

func NewBackups(bucket Bucket, prefix string, keep int) *Backups {
	if keep <= 0 {
		keep = defaultKeep
	}
	return &Backups{
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		keep:   keep,
		now:    time.Now,
	}
}

func (b *Backups) key(stamp, name string) string {
	if b.prefix == "" {
		return path.Join(stamp, name)
	}
	return path.Join(b.prefix, stamp, name)
}

// Run uploads every artifact under a new stamp and prunes old sets. A
// failing artifact aborts the run; the partial set is pruned later like any
// other.
func (b *Backups) Run(ctx context.Context, artifacts []Artifact) (string, error) {
	stamp := b.now().UTC().Format(stampLayout)

	for _, a := range artifacts {
		data, err := a.Read(ctx)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", a.Name, err)
		}
		if err := b.bucket.Upload(ctx, b.key(stamp, a.Name), data, a.ContentType); err != nil {
			return "", err
		}
	}

	logger.Info("backup uploaded", "stamp", stamp, "artifacts", len(artifacts))

	if err := b.prune(ctx); err != nil {
		logger.Warn("backup prune failed", "error", err)
	}
	return stamp, nil
}

// Stamps lists backup sets, oldest first.
func (b *Backups) Stamps(ctx context.Context) ([]string, error) {
	groups, err := b.groups(ctx)
	if err != nil {
		return nil, err
	}

	return sortedStamps(groups), nil
}

// Restore downloads one artifact of a backup set to dest.
func (b *Backups) Restore(ctx context.Context, stamp, name, dest string) error {
	data, err := b.bucket.Download(ctx, b.key(stamp, name))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create restore dir: %w", err)
	}
	return os.WriteFile(dest, data, 0o644)
}

func (b *Backups) groups(ctx context.Context) (map[string][]string, error) {
	listPrefix := ""
	if b.prefix != "" {
		listPrefix = b.prefix + "/"
	}

	files, err := b.bucket.List(ctx, listPrefix)
	if err != nil {
		return nil, err
	}

	groups := map[string][]string{}
	for _, f := range files {
		rest := strings.TrimPrefix(f.Name, listPrefix)
		stamp, _, ok := strings.Cut(rest, "/")
		if !ok {
			continue
		}
		if _, err := time.Parse(stampLayout, stamp); err != nil {
			continue
		}
		groups[stamp] = append(groups[stamp], f.Name)
	}
	return groups, nil
}

func (b *Backups) prune(ctx context.Context) error {
	groups, err := b.groups(ctx)
	if err != nil {
		return err
	}

	stamps := sortedStamps(groups)
	if len(stamps) <= b.keep {
		return nil
	}

	for _, s := range stamps[:len(stamps)-b.keep] {
		for _, name := range groups[s] {
			if err := b.bucket.Delete(ctx, name); err != nil {
				return err
			}
		}
		logger.Debug("backup pruned", "stamp", s)
	}
	return nil
}

func sortedStamps(groups map[string][]string) []string {
	stamps := make([]string, 0, len(groups))
	for s := range groups {
		stamps = append(stamps, s)
	}
	sort.Strings(stamps)
	return stamps
}
