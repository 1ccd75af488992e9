package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"chatsync/pkg/blobstore"
	"chatsync/pkg/docstore"
	"chatsync/pkg/logger"
	"chatsync/pkg/models"
)

// Directory reads and edits user profiles.
type Directory struct {
	store Store
	blobs blobstore.Store
}

func NewDirectory(store Store, blobs blobstore.Store) *Directory {
	return &Directory{store: store, blobs: blobs}
}

func (d *Directory) Get(ctx context.Context, userID string) (models.User, error) {
	doc, err := d.store.Get(ctx, models.UserPath(userID))
	if errors.Is(err, docstore.ErrNotFound) {
		return models.User{}, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	if err != nil {
		return models.User{}, err
	}
	u := models.UserFromFields(doc.Fields)
	if u.UserID == "" {
		u.UserID = userID
	}
	return u, nil
}

// ListOthers returns every user except userID, ordered by name.
func (d *Directory) ListOthers(ctx context.Context, userID string) ([]models.User, error) {
	docs, err := d.store.List(ctx, models.CollectionUsers, docstore.OrderBy(models.FieldName, docstore.Asc))
	if err != nil {
		return nil, err
	}
	out := make([]models.User, 0, len(docs))
	for _, doc := range docs {
		if doc.ID == userID {
			continue
		}
		u := models.UserFromFields(doc.Fields)
		if u.UserID == "" {
			u.UserID = doc.ID
		}
		out = append(out, u)
	}
	return out, nil
}

// ProfileImagePath is where a user's profile image is stored.
func ProfileImagePath(userID, filename string) string {
	return "users/" + userID + "/" + filename
}

// UpdateProfileImage uploads r as the user's profile image and points
// profileUrl at it. Only the base name of filename is kept.
func (d *Directory) UpdateProfileImage(ctx context.Context, userID, filename string, r io.Reader) (string, error) {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "" || name == "." || name == "/" {
		return "", ErrEmptyPath
	}
	if _, err := d.Get(ctx, userID); err != nil {
		return "", err
	}
	p := ProfileImagePath(userID, name)
	if _, err := d.blobs.Put(ctx, p, r); err != nil {
		return "", fmt.Errorf("upload profile image: %w", err)
	}
	url, err := d.blobs.URL(ctx, p)
	if err != nil {
		return "", err
	}
	if err := d.store.Update(ctx, models.UserPath(userID), docstore.Fields{models.FieldProfileURL: url}); err != nil {
		return "", fmt.Errorf("update profile: %w", err)
	}
	logger.Info("profile_image_updated", "user", userID)
	return url, nil
}
