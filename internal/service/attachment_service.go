package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trpgsessionhub/server/internal/authz"
	"github.com/trpgsessionhub/server/internal/model"
	"github.com/trpgsessionhub/server/internal/repository"
	"github.com/trpgsessionhub/server/pkg/apperror"
	"github.com/trpgsessionhub/server/pkg/storage"
)

type UploadAttachmentInput struct {
	Reader      io.Reader
	Filename    string
	ContentType string
	SizeBytes   int64
	Description *string
}

type AttachmentService interface {
	Upload(ctx context.Context, actorID, handoutID uuid.UUID, input UploadAttachmentInput) (*model.Attachment, error)
	Get(ctx context.Context, actorID, attachmentID uuid.UUID) (*model.Attachment, error)
	ListByHandout(ctx context.Context, actorID, handoutID uuid.UUID) ([]model.Attachment, error)
	Delete(ctx context.Context, actorID, attachmentID uuid.UUID) error
	SweepOrphanBlobs(ctx context.Context, batchSize int) error
}

type attachmentService struct {
	db             *gorm.DB
	attachmentRepo repository.AttachmentRepository
	handoutRepo    repository.HandoutRepository
	sessionRepo    repository.SessionRepository
	blobs          storage.BlobStorage
	access         accessChecker
}

func NewAttachmentService(db *gorm.DB, attachmentRepo repository.AttachmentRepository, handoutRepo repository.HandoutRepository, sessionRepo repository.SessionRepository, groupRepo repository.GroupRepository, blobs storage.BlobStorage) AttachmentService {
	return &attachmentService{
		db:             db,
		attachmentRepo: attachmentRepo,
		handoutRepo:    handoutRepo,
		sessionRepo:    sessionRepo,
		blobs:          blobs,
		access:         accessChecker{sessionRepo: sessionRepo, groupRepo: groupRepo},
	}
}

// Upload validates type and size before any byte reaches storage, so a
// rejected upload leaves neither a blob nor a metadata row behind.
func (s *attachmentService) Upload(ctx context.Context, actorID, handoutID uuid.UUID, input UploadAttachmentInput) (*model.Attachment, error) {
	handout, err := s.handoutRepo.FindByID(ctx, handoutID)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}

	session, err := s.sessionRepo.FindByID(ctx, handout.SessionID)
	if err != nil {
		return nil, err
	}

	env, err := s.access.sessionEnv(ctx, actorID, session)
	if err != nil {
		return nil, err
	}
	env.Handout = handout
	if !authz.May(authz.ActionAttachmentUpload, env) {
		if !authz.May(authz.ActionHandoutView, env) {
			return nil, apperror.ErrNotFound
		}
		return nil, apperror.ErrForbidden
	}

	fileType, canonicalCT, ok := model.DetectFileType(input.ContentType, input.Filename)
	if !ok {
		return nil, apperror.New(apperror.KindUnsupportedContentType,
			fmt.Sprintf("content type %q is not allowed", input.ContentType))
	}
	if input.SizeBytes <= 0 {
		return nil, apperror.New(apperror.KindValidationError, "file size must be positive")
	}
	if maxSize := model.MaxSizeFor(fileType); input.SizeBytes > maxSize {
		return nil, apperror.New(apperror.KindFileTooLarge,
			fmt.Sprintf("%s files are limited to %d MiB", fileType, maxSize/model.MiB))
	}

	path := blobPath(session.ID, handout.ID, input.Filename)
	fileURL, err := s.blobs.Upload(ctx, input.Reader, path)
	if err != nil {
		return nil, fmt.Errorf("failed to upload attachment: %w", err)
	}

	attachment := &model.Attachment{
		HandoutID:        handout.ID,
		UploaderID:       actorID,
		FileURL:          fileURL,
		StoragePath:      path,
		OriginalFilename: input.Filename,
		ContentType:      canonicalCT,
		FileType:         fileType,
		SizeBytes:        input.SizeBytes,
		Description:      input.Description,
	}
	if err := s.attachmentRepo.Create(ctx, attachment); err != nil {
		// The blob is already up; queue it so the sweep reclaims it.
		if qErr := s.attachmentRepo.EnqueueOrphanBlob(ctx, fileURL); qErr != nil {
			log.Printf("failed to queue orphan blob %s: %v", fileURL, qErr)
		}
		return nil, err
	}
	return attachment, nil
}

func (s *attachmentService) Get(ctx context.Context, actorID, attachmentID uuid.UUID) (*model.Attachment, error) {
	attachment, env, err := s.loadAttachment(ctx, actorID, attachmentID)
	if err != nil {
		return nil, err
	}
	// Attachment access follows the visibility of its handout.
	if !authz.May(authz.ActionAttachmentView, env) {
		return nil, apperror.ErrNotFound
	}
	return attachment, nil
}

// ListByHandout returns a handout's attachments for anyone who can view the
// handout itself.
func (s *attachmentService) ListByHandout(ctx context.Context, actorID, handoutID uuid.UUID) ([]model.Attachment, error) {
	handout, err := s.handoutRepo.FindByID(ctx, handoutID)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}
	session, err := s.sessionRepo.FindByID(ctx, handout.SessionID)
	if err != nil {
		return nil, err
	}
	env, err := s.access.sessionEnv(ctx, actorID, session)
	if err != nil {
		return nil, err
	}
	env.Handout = handout
	if !authz.May(authz.ActionHandoutView, env) {
		return nil, apperror.ErrNotFound
	}
	return s.attachmentRepo.ListByHandout(ctx, handout.ID)
}

// Delete removes the metadata row and then attempts the blob delete. The row
// delete is authoritative; a failed blob delete is queued for the sweep.
func (s *attachmentService) Delete(ctx context.Context, actorID, attachmentID uuid.UUID) error {
	attachment, env, err := s.loadAttachment(ctx, actorID, attachmentID)
	if err != nil {
		return err
	}
	if !authz.May(authz.ActionAttachmentDelete, env) {
		if !authz.May(authz.ActionAttachmentView, env) {
			return apperror.ErrNotFound
		}
		return apperror.ErrForbidden
	}

	if err := s.attachmentRepo.Delete(ctx, attachment.ID); err != nil {
		return err
	}

	if err := s.blobs.Delete(ctx, attachment.FileURL); err != nil {
		log.Printf("failed to delete blob %s, queueing for sweep: %v", attachment.FileURL, err)
		if qErr := s.attachmentRepo.EnqueueOrphanBlob(ctx, attachment.FileURL); qErr != nil {
			log.Printf("failed to queue orphan blob %s: %v", attachment.FileURL, qErr)
		}
	}
	return nil
}

// SweepOrphanBlobs drains the orphan queue, deleting blobs whose metadata is
// gone. Failures stay queued for the next run.
func (s *attachmentService) SweepOrphanBlobs(ctx context.Context, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 50
	}
	orphans, err := s.attachmentRepo.ListOrphanBlobs(ctx, batchSize)
	if err != nil {
		return err
	}
	for _, orphan := range orphans {
		if err := s.blobs.Delete(ctx, orphan.FileURL); err != nil {
			log.Printf("orphan blob sweep: failed to delete %s: %v", orphan.FileURL, err)
			continue
		}
		if err := s.attachmentRepo.DeleteOrphanBlob(ctx, orphan.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *attachmentService) loadAttachment(ctx context.Context, actorID, attachmentID uuid.UUID) (*model.Attachment, authz.Env, error) {
	attachment, err := s.attachmentRepo.FindByID(ctx, attachmentID)
	if err != nil {
		if isNotFound(err) {
			return nil, authz.Env{}, apperror.ErrNotFound
		}
		return nil, authz.Env{}, err
	}

	handout, err := s.handoutRepo.FindByID(ctx, attachment.HandoutID)
	if err != nil {
		return nil, authz.Env{}, err
	}
	session, err := s.sessionRepo.FindByID(ctx, handout.SessionID)
	if err != nil {
		return nil, authz.Env{}, err
	}

	env, err := s.access.sessionEnv(ctx, actorID, session)
	if err != nil {
		return nil, authz.Env{}, err
	}
	env.Handout = handout
	env.Attachment = attachment
	return attachment, env, nil
}

// blobPath builds handouts/{session}/{handout}/{timestamp}_{suffix}{ext}.
// The timestamp plus random suffix keeps re-uploads of the same filename
// from colliding.
func blobPath(sessionID, handoutID uuid.UUID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("handouts/%s/%s/%s_%s%s",
		sessionID, handoutID,
		time.Now().UTC().Format("20060102_150405"),
		randomHex(4), ext)
}
