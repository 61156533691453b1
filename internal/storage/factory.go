// Package storage builds the configured artifact storage provider.
package storage

import (
	"context"
	"fmt"

	"renderhub/internal/adapters/storage/gdrive"
	"renderhub/internal/adapters/storage/localfs"
	"renderhub/internal/adapters/storage/s3"
	"renderhub/internal/config"
	"renderhub/internal/ports"
)

// NewProvider returns the provider selected by cfg.Storage. When storage is
// not configured it returns a nil provider and the reason, which callers pass
// on to the artifact uploader.
func NewProvider(ctx context.Context, cfg *config.Config) (ports.StorageProvider, string, error) {
	if missing := cfg.StorageMissing(); missing != "" {
		return nil, missing, nil
	}

	sc := cfg.Storage
	switch sc.Provider {
	case config.ProviderS3:
		client, err := s3.Dial(ctx, s3.Options{
			Bucket:     sc.S3.Bucket,
			Region:     sc.S3.Region,
			Presign:    sc.S3.URLMode == config.URLModePresigned,
			PresignTTL: sc.S3.PresignTTL,
		})
		if err != nil {
			return nil, "", err
		}
		return client, "", nil

	case config.ProviderLocalFS:
		return localfs.New(sc.Local.Root, sc.Local.BaseURL), "", nil

	case config.ProviderGDrive:
		client, err := gdrive.Dial(ctx, gdrive.Credentials{
			ClientID:     sc.GDrive.ClientID,
			ClientSecret: sc.GDrive.ClientSecret,
			RefreshToken: sc.GDrive.RefreshToken,
		}, sc.GDrive.FolderID)
		if err != nil {
			return nil, "", err
		}
		return client, "", nil

	default:
		return nil, "", fmt.Errorf("unknown storage provider: %s", sc.Provider)
	}
}
