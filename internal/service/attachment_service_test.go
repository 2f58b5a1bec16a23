package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/trpgsessionhub/server/internal/model"
	"github.com/trpgsessionhub/server/internal/repository"
	"github.com/trpgsessionhub/server/internal/testutil"
	"github.com/trpgsessionhub/server/pkg/apperror"
)

// fakeBlobStorage keeps blobs in memory and can be told to fail deletes.
type fakeBlobStorage struct {
	uploads     []string
	deleted     []string
	failDeletes bool
}

func (f *fakeBlobStorage) Upload(ctx context.Context, r io.Reader, path string) (string, error) {
	f.uploads = append(f.uploads, path)
	return "https://cdn.example.com/" + path, nil
}

func (f *fakeBlobStorage) Delete(ctx context.Context, fileURL string) error {
	if f.failDeletes {
		return errors.New("storage unavailable")
	}
	f.deleted = append(f.deleted, fileURL)
	return nil
}

func newAttachmentService(t *testing.T, db *gorm.DB, blobs *fakeBlobStorage) AttachmentService {
	t.Helper()
	return NewAttachmentService(db,
		repository.NewAttachmentRepository(db),
		repository.NewHandoutRepository(db),
		repository.NewSessionRepository(db),
		repository.NewGroupRepository(db),
		blobs)
}

func attachmentFixture(t *testing.T, db *gorm.DB) (*model.User, *model.User, *model.Session, *model.Handout) {
	t.Helper()
	gm := testutil.CreateUser(t, db, "gm")
	player := testutil.CreateUser(t, db, "player")
	group := testutil.CreateGroup(t, db, gm, player)
	session := testutil.CreateSession(t, db, gm, group, model.SessionVisibilityGroup)
	p := testutil.AddParticipant(t, db, session, player, nil)
	handout := testutil.CreateHandout(t, db, session, p, false)
	return gm, player, session, handout
}

func TestUploadValidatesContentType(t *testing.T) {
	db := testutil.NewTestDB(t)
	blobs := &fakeBlobStorage{}
	svc := newAttachmentService(t, db, blobs)
	gm, _, _, handout := attachmentFixture(t, db)

	_, err := svc.Upload(context.Background(), gm.ID, handout.ID, UploadAttachmentInput{
		Reader:      strings.NewReader("x"),
		Filename:    "tool.exe",
		ContentType: "application/x-msdownload",
		SizeBytes:   100,
	})
	assert.Equal(t, apperror.KindUnsupportedContentType, apperror.KindOf(err))
	assert.Empty(t, blobs.uploads, "rejected uploads never reach storage")

	// A missing content type falls back to the filename extension.
	attachment, err := svc.Upload(context.Background(), gm.ID, handout.ID, UploadAttachmentInput{
		Reader:    strings.NewReader("png bytes"),
		Filename:  "map.png",
		SizeBytes: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, model.FileTypeImage, attachment.FileType)
	assert.Equal(t, "image/png", attachment.ContentType)
	require.Len(t, blobs.uploads, 1)
	assert.True(t, strings.HasSuffix(blobs.uploads[0], ".png"))
}

func TestUploadEnforcesSizeCaps(t *testing.T) {
	db := testutil.NewTestDB(t)
	blobs := &fakeBlobStorage{}
	svc := newAttachmentService(t, db, blobs)
	gm, _, _, handout := attachmentFixture(t, db)

	_, err := svc.Upload(context.Background(), gm.ID, handout.ID, UploadAttachmentInput{
		Reader:      strings.NewReader("x"),
		Filename:    "huge.png",
		ContentType: "image/png",
		SizeBytes:   model.MaxSizeFor(model.FileTypeImage) + 1,
	})
	assert.Equal(t, apperror.KindFileTooLarge, apperror.KindOf(err))

	// Video gets a larger cap than image.
	_, err = svc.Upload(context.Background(), gm.ID, handout.ID, UploadAttachmentInput{
		Reader:      strings.NewReader("x"),
		Filename:    "replay.mp4",
		ContentType: "video/mp4",
		SizeBytes:   model.MaxSizeFor(model.FileTypeImage) + 1,
	})
	assert.NoError(t, err)

	_, err = svc.Upload(context.Background(), gm.ID, handout.ID, UploadAttachmentInput{
		Reader:      strings.NewReader("x"),
		Filename:    "empty.png",
		ContentType: "image/png",
		SizeBytes:   0,
	})
	assert.Equal(t, apperror.KindValidationError, apperror.KindOf(err))
}

func TestUploadIsGMOnly(t *testing.T) {
	db := testutil.NewTestDB(t)
	blobs := &fakeBlobStorage{}
	svc := newAttachmentService(t, db, blobs)
	_, player, _, handout := attachmentFixture(t, db)

	_, err := svc.Upload(context.Background(), player.ID, handout.ID, UploadAttachmentInput{
		Reader:      strings.NewReader("x"),
		Filename:    "map.png",
		ContentType: "image/png",
		SizeBytes:   100,
	})
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestAttachmentAccessFollowsHandout(t *testing.T) {
	db := testutil.NewTestDB(t)
	blobs := &fakeBlobStorage{}
	svc := newAttachmentService(t, db, blobs)
	gm := testutil.CreateUser(t, db, "gm")
	target := testutil.CreateUser(t, db, "target")
	bystander := testutil.CreateUser(t, db, "bystander")
	group := testutil.CreateGroup(t, db, gm, target, bystander)
	session := testutil.CreateSession(t, db, gm, group, model.SessionVisibilityGroup)
	targetP := testutil.AddParticipant(t, db, session, target, nil)
	testutil.AddParticipant(t, db, session, bystander, nil)
	secret := testutil.CreateHandout(t, db, session, targetP, true)

	attachment, err := svc.Upload(context.Background(), gm.ID, secret.ID, UploadAttachmentInput{
		Reader:      strings.NewReader("x"),
		Filename:    "clue.pdf",
		ContentType: "application/pdf",
		SizeBytes:   100,
	})
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), target.ID, attachment.ID)
	require.NoError(t, err)
	assert.Equal(t, attachment.ID, got.ID)

	// A participant who cannot see the handout cannot see its attachments.
	_, err = svc.Get(context.Background(), bystander.ID, attachment.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	// Listing by handout applies the same rule.
	listed, err := svc.ListByHandout(context.Background(), target.ID, secret.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, attachment.ID, listed[0].ID)

	_, err = svc.ListByHandout(context.Background(), bystander.ID, secret.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestDeleteAttachment(t *testing.T) {
	db := testutil.NewTestDB(t)
	blobs := &fakeBlobStorage{}
	svc := newAttachmentService(t, db, blobs)
	gm, player, _, handout := attachmentFixture(t, db)

	attachment, err := svc.Upload(context.Background(), gm.ID, handout.ID, UploadAttachmentInput{
		Reader:      strings.NewReader("x"),
		Filename:    "map.png",
		ContentType: "image/png",
		SizeBytes:   100,
	})
	require.NoError(t, err)

	// Neither GM nor uploader: denied.
	err = svc.Delete(context.Background(), player.ID, attachment.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	require.NoError(t, svc.Delete(context.Background(), gm.ID, attachment.ID))
	assert.Equal(t, []string{attachment.FileURL}, blobs.deleted)

	var count int64
	db.Model(&model.Attachment{}).Where("id = ?", attachment.ID).Count(&count)
	assert.Zero(t, count)
}

func TestFailedBlobDeleteIsQueuedAndSwept(t *testing.T) {
	db := testutil.NewTestDB(t)
	blobs := &fakeBlobStorage{failDeletes: true}
	svc := newAttachmentService(t, db, blobs)
	gm, _, _, handout := attachmentFixture(t, db)

	attachment, err := svc.Upload(context.Background(), gm.ID, handout.ID, UploadAttachmentInput{
		Reader:      strings.NewReader("x"),
		Filename:    "map.png",
		ContentType: "image/png",
		SizeBytes:   100,
	})
	require.NoError(t, err)

	// The metadata delete succeeds even though storage is down.
	require.NoError(t, svc.Delete(context.Background(), gm.ID, attachment.ID))

	var orphans []model.OrphanBlob
	require.NoError(t, db.Find(&orphans).Error)
	require.Len(t, orphans, 1)
	assert.Equal(t, attachment.FileURL, orphans[0].FileURL)

	// Storage comes back; the sweep drains the queue.
	blobs.failDeletes = false
	require.NoError(t, svc.SweepOrphanBlobs(context.Background(), 10))
	assert.Equal(t, []string{attachment.FileURL}, blobs.deleted)

	var remaining int64
	db.Model(&model.OrphanBlob{}).Count(&remaining)
	assert.Zero(t, remaining)
}
