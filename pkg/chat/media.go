package chat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"chatsync/pkg/blobstore"
	"chatsync/pkg/logger"
)

// MediaPipeline stores local media files in the blob store and returns
// their download URLs.
type MediaPipeline struct {
	blobs    blobstore.Store
	newToken func() string
}

func NewMediaPipeline(blobs blobstore.Store) *MediaPipeline {
	return &MediaPipeline{blobs: blobs, newToken: timeToken}
}

// timeToken is a UUIDv7, so tokens sort by creation time.
func timeToken() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// Extension returns the file extension of localPath without the dot. When
// the name has none the content is sniffed.
func Extension(localPath string) string {
	if ext := strings.TrimPrefix(filepath.Ext(localPath), "."); ext != "" {
		return strings.ToLower(ext)
	}
	if mt, err := mimetype.DetectFile(localPath); err == nil {
		if ext := strings.TrimPrefix(mt.Extension(), "."); ext != "" {
			return ext
		}
	}
	return "bin"
}

// MediaPath is where a conversation's media blob lives.
func MediaPath(chatID, token, ext string) string {
	return fmt.Sprintf("chat/%s/%s.%s", chatID, token, ext)
}

// Upload stores localPath under the conversation and returns the blob's
// download URL.
func (p *MediaPipeline) Upload(ctx context.Context, chatID, localPath string) (string, error) {
	if localPath == "" {
		return "", ErrEmptyPath
	}
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open media: %w", err)
	}
	defer f.Close()

	blobPath := MediaPath(chatID, p.newToken(), Extension(localPath))
	n, err := p.blobs.Put(ctx, blobPath, f)
	if err != nil {
		logger.Warn("media_upload_failed", "chat", chatID, "path", blobPath, "error", err)
		return "", fmt.Errorf("upload media: %w", err)
	}
	url, err := p.blobs.URL(ctx, blobPath)
	if err != nil {
		return "", fmt.Errorf("media url: %w", err)
	}
	logger.Info("media_uploaded", "chat", chatID, "path", blobPath, "bytes", n)
	return url, nil
}
