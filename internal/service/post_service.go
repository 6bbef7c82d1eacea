package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"CMS_Blog/internal/metrics"
	"CMS_Blog/internal/model"
	"CMS_Blog/internal/pkg"
	"CMS_Blog/internal/repository/mysql"
	"CMS_Blog/internal/storage"

	"go.uber.org/zap"
)

type PostStore interface {
	FindByID(ctx context.Context, id uint64) (*model.Post, error)
	List(ctx context.Context) ([]model.Post, error)
	Save(ctx context.Context, post *model.Post, isNew bool) error
}

// EventPublisher 帖子事件投递，*pkg.KafkaProducer 即满足
type EventPublisher interface {
	Send(ctx context.Context, key string, value []byte) error
}

// PostInput 表单字段，每次保存整体覆盖
type PostInput struct {
	Title  string
	Author string
	Body   string
}

// Upload 本次请求携带的图片
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Data        io.Reader
}

// SaveResult Attachment 非空表示图片未更新，但帖子本身已保存
type SaveResult struct {
	Post          *model.Post
	Attachment    *AttachmentError
	ImageReplaced bool
}

// PostSavedEvent post.saved 事件体
type PostSavedEvent struct {
	Type          string    `json:"type"`
	PostID        uint64    `json:"post_id"`
	UserID        uint64    `json:"user_id"`
	Created       bool      `json:"created"`
	ImageReplaced bool      `json:"image_replaced"`
	At            time.Time `json:"at"`
}

type PostService struct {
	repo      PostStore
	blobs     storage.Gateway
	publisher EventPublisher
	logger    *zap.SugaredLogger
	metrics   *metrics.Metrics
	now       func() time.Time
}

type PostOption func(*PostService)

func WithPublisher(p EventPublisher) PostOption {
	return func(s *PostService) { s.publisher = p }
}

func WithPostMetrics(m *metrics.Metrics) PostOption {
	return func(s *PostService) { s.metrics = m }
}

func WithClock(now func() time.Time) PostOption {
	return func(s *PostService) { s.now = now }
}

func NewPostService(repo PostStore, blobs storage.Gateway, logger *zap.SugaredLogger, opts ...PostOption) *PostService {
	s := &PostService{
		repo:   repo,
		blobs:  blobs,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PostService) Get(ctx context.Context, id uint64) (*model.Post, error) {
	post, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, mysql.ErrNotFound) {
		return nil, ErrPostNotFound
	}
	return post, err
}

func (s *PostService) List(ctx context.Context) ([]model.Post, error) {
	return s.repo.List(ctx)
}

// ImageURL 帖子图片的访问地址，没有图片返回空串
func (s *PostService) ImageURL(post *model.Post) string {
	if !post.HasImage() {
		return ""
	}
	return storage.ResolveURL(s.blobs, *post.ImagePath)
}

// Save 覆盖字段、按需替换图片并提交。
// 图片失败只体现在 SaveResult.Attachment，返回的 error 仅代表提交失败。
// 编辑会把 UserID 改成当前编辑者。
func (s *PostService) Save(ctx context.Context, post *model.Post, in PostInput, upload *Upload, actingUserID uint64, isNew bool) (SaveResult, error) {
	post.Title = in.Title
	post.Author = in.Author
	post.Body = in.Body
	post.UserID = actingUserID

	result := SaveResult{Post: post}
	var superseded string

	if upload != nil && upload.Size > 0 && upload.Data != nil {
		ref, attErr := s.storeAttachment(ctx, upload)
		if attErr != nil {
			s.logger.Warnw("image upload failed", "op", attErr.Op, "error", attErr.Err)
			s.metrics.RecordAttachmentFailure(ctx, attErr.Op)
			result.Attachment = attErr
		} else {
			if post.HasImage() {
				superseded = *post.ImagePath
			}
			post.ImagePath = &ref
			result.ImageReplaced = true
		}
	}

	if isNew && post.Timestamp.IsZero() {
		post.Timestamp = s.now().UTC()
	}

	if err := s.repo.Save(ctx, post, isNew); err != nil {
		return result, err
	}
	s.metrics.RecordPostSave(ctx, isNew)

	// 提交成功后才删旧图，失败只记日志，留下孤儿 blob
	if superseded != "" {
		name := storage.NameFromReference(superseded)
		if err := s.blobs.Delete(ctx, name); err != nil {
			s.logger.Warnw("delete superseded blob failed", "blob", name, "error", err)
			s.metrics.RecordBlobDeleteFailure(ctx)
		}
	}

	s.publishSaved(ctx, post, isNew, result.ImageReplaced)
	return result, nil
}

func (s *PostService) storeAttachment(ctx context.Context, upload *Upload) (string, *AttachmentError) {
	name, err := storage.NewBlobName(upload.Filename)
	if err != nil {
		return "", &AttachmentError{Op: "name", Filename: upload.Filename, Err: err}
	}

	data, contentType, err := storage.DetectContentType(upload.Data, upload.ContentType, pkg.SplitExt(name))
	if err != nil {
		return "", &AttachmentError{Op: "upload", Filename: upload.Filename, Err: err}
	}

	ref, err := s.blobs.Upload(ctx, name, data, contentType)
	if err != nil {
		return "", &AttachmentError{Op: "upload", Filename: upload.Filename, Err: err}
	}
	return ref, nil
}

func (s *PostService) publishSaved(ctx context.Context, post *model.Post, isNew, imageReplaced bool) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(PostSavedEvent{
		Type:          "post.saved",
		PostID:        post.ID,
		UserID:        post.UserID,
		Created:       isNew,
		ImageReplaced: imageReplaced,
		At:            s.now().UTC(),
	})
	if err != nil {
		s.logger.Warnw("marshal post event failed", "post_id", post.ID, "error", err)
		return
	}
	if err := s.publisher.Send(ctx, pkg.MakeKeyFromID(post.ID), payload); err != nil {
		s.logger.Warnw("publish post event failed", "post_id", post.ID, "error", err)
	}
}
