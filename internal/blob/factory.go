package blob

import (
	"context"
	"fmt"

	"github.com/yuanying/epubshelf/internal/config"
)

// NewAdapter creates a blob adapter based on the configuration
func NewAdapter(ctx context.Context, cfg *config.Config) (Adapter, error) {
	switch cfg.Storage.Blobs.Kind {
	case "", "local":
		return NewLocalAdapter(cfg.BlobDir())
	case "s3":
		s3cfg := cfg.Storage.Blobs.S3
		return NewS3Adapter(ctx, S3Options{
			Endpoint:        s3cfg.Endpoint,
			Region:          s3cfg.Region,
			Bucket:          s3cfg.Bucket,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
			UsePathStyle:    s3cfg.UsePathStyle,
			Prefix:          s3cfg.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown blob store: %s", cfg.Storage.Blobs.Kind)
	}
}
