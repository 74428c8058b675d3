package archive

import (
	"context"
	"fmt"

	"drivescope/internal/config"
	"drivescope/internal/inspect"
)

// NewArchiveFromConfig creates an Archive implementation based on the archive config type.
func NewArchiveFromConfig(cfg config.ArchiveConfig) (inspect.Archive, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryArchive(), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 archive requires s3_bucket to be set")
		}
		return NewS3Archive(context.Background(), cfg.S3Bucket, cfg.S3Prefix, cfg.S3Region, cfg.S3AccessKey, cfg.S3SecretKey)
	case "filesystem":
		if cfg.FSArchiveRoot == "" {
			return nil, fmt.Errorf("filesystem archive requires fs_archive_root to be set")
		}
		return NewFileSystemArchive(cfg.FSArchiveRoot)
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}
}
