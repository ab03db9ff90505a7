// Package storage persists binary attachments produced by node operations.
// It defines the Storage interface (port) and implementations for local disk
// and S3.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/maauso/maiarouter-node/internal/node"
)

// ErrInvalidKey is returned for keys that are empty or escape the storage root.
var ErrInvalidKey = errors.New("storage: invalid key")

// Storage defines the interface for attachment persistence.
type Storage interface {
	// Put stores data under key and returns where it landed
	// (a file path or an object URL).
	Put(ctx context.Context, key, contentType string, data io.Reader) (location string, err error)
}

// cleanKey normalizes key to a relative slash path inside the storage root.
func cleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return k, nil
}

// Persist writes every in-memory attachment of items to st. Each attachment
// is stored under "<uuid>/<fileName>", gets its Location set, and has its
// Data released.
func Persist(ctx context.Context, st Storage, items []node.Item, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for i := range items {
		for name, b := range items[i].Binary {
			if b == nil || len(b.Data) == 0 {
				continue
			}
			fileName := b.FileName
			if fileName == "" {
				fileName = name
			}
			key := uuid.NewString() + "/" + fileName

			loc, err := st.Put(ctx, key, b.MimeType, bytes.NewReader(b.Data))
			if err != nil {
				return fmt.Errorf("persist attachment %s of item %d: %w", name, i, err)
			}
			logger.Info("attachment persisted",
				slog.Int("item", i),
				slog.String("property", name),
				slog.String("location", loc),
				slog.Int("size", b.FileSize),
			)
			b.Location = loc
			b.Data = nil
		}
	}
	return nil
}
