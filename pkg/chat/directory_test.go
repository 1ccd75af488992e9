package chat

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsync/pkg/docstore"
	"chatsync/pkg/models"
)

func TestListOthers(t *testing.T) {
	db := openDB(t)
	seedUsers(t, db, "u3", "u1", "u2")
	d := NewDirectory(docstore.NewClient(db), openBlobs(t))

	users, err := d.ListOthers(context.Background(), "u2")
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "u1", users[0].UserID)
	assert.Equal(t, "u3", users[1].UserID)
}

func TestUpdateProfileImage(t *testing.T) {
	db := openDB(t)
	seedUsers(t, db, "u1")
	blobs := openBlobs(t)
	d := NewDirectory(docstore.NewClient(db), blobs)
	ctx := context.Background()

	url, err := d.UpdateProfileImage(ctx, "u1", "../../me.png", bytes.NewReader(pngBytes))
	require.NoError(t, err)
	assert.Equal(t, "http://chat.test/v1/blobs/users/u1/me.png", url)

	info, err := blobs.Stat(ProfileImagePath("u1", "me.png"))
	require.NoError(t, err)
	assert.Equal(t, "image/png", info.ContentType)

	u, err := d.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, url, u.ProfileURL)
	assert.Equal(t, "name-u1", u.Name)
}

func TestUpdateProfileImageUnknownUser(t *testing.T) {
	db := openDB(t)
	d := NewDirectory(docstore.NewClient(db), openBlobs(t))
	_, err := d.UpdateProfileImage(context.Background(), "ghost", "a.png", bytes.NewReader(pngBytes))
	assert.ErrorIs(t, err, ErrUnknownUser)

	_, err = d.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUnknownUser)
	_, err = db.Get(context.Background(), models.UserPath("ghost"))
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}
