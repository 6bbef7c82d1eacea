package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"CMS_Blog/internal/model"
	"CMS_Blog/internal/repository/mysql"
	"CMS_Blog/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

type postFixture struct {
	svc   *PostService
	repo  *mysql.PostRepository
	blobs *mockGateway
	owner *model.User
	other *model.User
}

func newPostFixture(t *testing.T, opts ...PostOption) *postFixture {
	t.Helper()
	db := newTestDB(t)
	users := mysql.NewUserRepository(db)
	f := &postFixture{
		repo:  mysql.NewPostRepository(db),
		blobs: &mockGateway{},
		owner: seedUser(t, users, "alice", "h"),
		other: seedUser(t, users, "bob", "h"),
	}
	opts = append([]PostOption{WithClock(func() time.Time { return fixedNow })}, opts...)
	f.svc = NewPostService(f.repo, f.blobs, testLogger(), opts...)
	return f
}

func upload(filename, body string) *Upload {
	return &Upload{
		Filename:    filename,
		ContentType: "image/png",
		Size:        int64(len(body)),
		Data:        strings.NewReader(body),
	}
}

func refFor(name string) string {
	return "https://acct.blob.core.windows.net/images/" + name
}

func TestSaveNewPostWithoutFile(t *testing.T) {
	ctx := context.Background()
	f := newPostFixture(t)

	post := &model.Post{}
	res, err := f.svc.Save(ctx, post, PostInput{Title: "T", Author: "A", Body: "B"}, nil, f.owner.ID, true)
	require.NoError(t, err)
	assert.Nil(t, res.Attachment)
	assert.False(t, res.ImageReplaced)

	got, err := f.repo.FindByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "T", got.Title)
	assert.Equal(t, "A", got.Author)
	assert.Equal(t, "B", got.Body)
	assert.Nil(t, got.ImagePath)
	assert.Equal(t, f.owner.ID, got.UserID)
	assert.True(t, got.Timestamp.Equal(fixedNow))

	f.blobs.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything)
	f.blobs.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestSaveWithoutFileKeepsImagePath(t *testing.T) {
	ctx := context.Background()
	f := newPostFixture(t)

	ref := refFor("OLD.png")
	post := &model.Post{ImagePath: &ref}
	_, err := f.svc.Save(ctx, post, PostInput{Title: "T"}, nil, f.owner.ID, true)
	require.NoError(t, err)

	emptyFile := &Upload{Filename: "x.png", Size: 0, Data: strings.NewReader("")}
	_, err = f.svc.Save(ctx, post, PostInput{Title: "T2"}, emptyFile, f.owner.ID, false)
	require.NoError(t, err)

	got, err := f.repo.FindByID(ctx, post.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ImagePath)
	assert.Equal(t, ref, *got.ImagePath)
	assert.Equal(t, "T2", got.Title)
	f.blobs.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything)
}

func TestSaveReplacesAttachment(t *testing.T) {
	ctx := context.Background()
	f := newPostFixture(t)

	post := &model.Post{}
	_, err := f.svc.Save(ctx, post, PostInput{Title: "T", Author: "A", Body: "B"}, nil, f.owner.ID, true)
	require.NoError(t, err)

	// 第一次带图编辑：旧值为空，不应删除
	var firstName string
	f.blobs.On("Upload", mock.Anything, mock.MatchedBy(func(name string) bool {
		return strings.HasSuffix(name, ".PNG")
	}), "image/png").Run(func(args mock.Arguments) {
		firstName = args.String(1)
	}).Return(refFor("FIRST.PNG"), nil).Once()

	res, err := f.svc.Save(ctx, post, PostInput{Title: "T", Author: "A", Body: "B"}, upload("photo.PNG", "png-bytes"), f.other.ID, false)
	require.NoError(t, err)
	assert.Nil(t, res.Attachment)
	assert.True(t, res.ImageReplaced)
	assert.Regexp(t, `^[A-Z0-9]{32}\.PNG$`, firstName)
	f.blobs.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)

	got, err := f.repo.FindByID(ctx, post.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ImagePath)
	assert.Equal(t, refFor("FIRST.PNG"), *got.ImagePath)
	assert.Equal(t, f.other.ID, got.UserID, "editing reassigns ownership")
	assert.True(t, got.Timestamp.Equal(fixedNow))

	// 第二次：删除一次旧 blob，上传一次新 blob
	f.blobs.On("Upload", mock.Anything, mock.AnythingOfType("string"), "image/png").
		Return(refFor("SECOND.jpg"), nil).Once()
	f.blobs.On("Delete", mock.Anything, "FIRST.PNG").Return(nil).Once()

	res, err = f.svc.Save(ctx, got, PostInput{Title: "T", Author: "A", Body: "B"}, upload("next.jpg", "jpg-bytes"), f.other.ID, false)
	require.NoError(t, err)
	assert.Nil(t, res.Attachment)

	f.blobs.AssertNumberOfCalls(t, "Upload", 2)
	f.blobs.AssertNumberOfCalls(t, "Delete", 1)
	f.blobs.AssertExpectations(t)

	reloaded, err := f.repo.FindByID(ctx, post.ID)
	require.NoError(t, err)
	assert.NotEqual(t, refFor("FIRST.PNG"), *reloaded.ImagePath)
	assert.Equal(t, refFor("SECOND.jpg"), *reloaded.ImagePath)
}

func TestSaveLegacyBareImageName(t *testing.T) {
	ctx := context.Background()
	f := newPostFixture(t)

	legacy := "LEGACY.png"
	post := &model.Post{ImagePath: &legacy}
	_, err := f.svc.Save(ctx, post, PostInput{Title: "T"}, nil, f.owner.ID, true)
	require.NoError(t, err)
	assert.Equal(t, refFor("LEGACY.png"), f.svc.ImageURL(post))

	f.blobs.On("Upload", mock.Anything, mock.Anything, "image/png").Return(refFor("NEW.png"), nil).Once()
	f.blobs.On("Delete", mock.Anything, "LEGACY.png").Return(nil).Once()

	_, err = f.svc.Save(ctx, post, PostInput{Title: "T"}, upload("a.png", "x"), f.owner.ID, false)
	require.NoError(t, err)
	f.blobs.AssertExpectations(t)
}

func TestSaveUploadFailureStillCommitsFields(t *testing.T) {
	ctx := context.Background()
	f := newPostFixture(t)

	ref := refFor("KEEP.png")
	post := &model.Post{ImagePath: &ref}
	_, err := f.svc.Save(ctx, post, PostInput{Title: "old"}, nil, f.owner.ID, true)
	require.NoError(t, err)

	f.blobs.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("storage unavailable")).Once()

	res, err := f.svc.Save(ctx, post, PostInput{Title: "new", Author: "A", Body: "B"}, upload("a.png", "x"), f.other.ID, false)
	require.NoError(t, err)
	require.NotNil(t, res.Attachment)
	assert.Equal(t, "upload", res.Attachment.Op)
	assert.False(t, res.ImageReplaced)
	assert.Contains(t, res.Attachment.Error(), "storage unavailable")

	got, err := f.repo.FindByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Title)
	assert.Equal(t, f.other.ID, got.UserID)
	assert.Equal(t, ref, *got.ImagePath, "image path untouched on upload failure")
	f.blobs.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestSaveMissingExtensionIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newPostFixture(t)

	post := &model.Post{}
	res, err := f.svc.Save(ctx, post, PostInput{Title: "T"}, upload("README", "x"), f.owner.ID, true)
	require.NoError(t, err)
	require.NotNil(t, res.Attachment)
	assert.Equal(t, "name", res.Attachment.Op)
	assert.ErrorIs(t, res.Attachment, storage.ErrMissingExtension)

	got, err := f.repo.FindByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ImagePath)
	f.blobs.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything)
}

func TestSaveOverlongExtensionIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newPostFixture(t)

	post := &model.Post{}
	filename := "photo." + strings.Repeat("x", 300)
	res, err := f.svc.Save(ctx, post, PostInput{Title: "T"}, upload(filename, "x"), f.owner.ID, true)
	require.NoError(t, err)
	require.NotNil(t, res.Attachment)
	assert.Equal(t, "name", res.Attachment.Op)
	assert.ErrorIs(t, res.Attachment, storage.ErrExtensionTooLong)

	got, err := f.repo.FindByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "T", got.Title)
	assert.Nil(t, got.ImagePath)
	f.blobs.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything)
}

func TestSaveDeleteFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	f := newPostFixture(t)

	ref := refFor("OLD.png")
	post := &model.Post{ImagePath: &ref}
	_, err := f.svc.Save(ctx, post, PostInput{Title: "T"}, nil, f.owner.ID, true)
	require.NoError(t, err)

	f.blobs.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return(refFor("NEW.png"), nil).Once()
	f.blobs.On("Delete", mock.Anything, "OLD.png").Return(errors.New("boom")).Once()

	res, err := f.svc.Save(ctx, post, PostInput{Title: "T"}, upload("a.png", "x"), f.owner.ID, false)
	require.NoError(t, err)
	assert.Nil(t, res.Attachment)
	assert.Equal(t, refFor("NEW.png"), *post.ImagePath)
	f.blobs.AssertExpectations(t)
}

func TestSaveWithMemoryGatewayRemovesPrior(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	owner := seedUser(t, mysql.NewUserRepository(db), "alice", "h")
	blobs := storage.NewMemoryGateway("memory://images")
	svc := NewPostService(mysql.NewPostRepository(db), blobs, testLogger())

	post := &model.Post{}
	_, err := svc.Save(ctx, post, PostInput{Title: "T"}, upload("a.png", "one"), owner.ID, true)
	require.NoError(t, err)
	first := storage.NameFromReference(*post.ImagePath)
	_, ok := blobs.Get(first)
	require.True(t, ok)

	_, err = svc.Save(ctx, post, PostInput{Title: "T"}, upload("b.png", "two"), owner.ID, false)
	require.NoError(t, err)
	second := storage.NameFromReference(*post.ImagePath)

	assert.NotEqual(t, first, second)
	_, ok = blobs.Get(first)
	assert.False(t, ok, "prior blob deleted")
	blob, ok := blobs.Get(second)
	require.True(t, ok)
	assert.Equal(t, "two", string(blob.Data))
	assert.Equal(t, 1, blobs.Len())
}

func TestSavePublishesEvent(t *testing.T) {
	ctx := context.Background()
	pub := &mockPublisher{}
	f := newPostFixture(t, WithPublisher(pub))

	var payload []byte
	pub.On("Send", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) { payload = args.Get(2).([]byte) }).
		Return(errors.New("broker down")).Once()

	post := &model.Post{}
	_, err := f.svc.Save(ctx, post, PostInput{Title: "T"}, nil, f.owner.ID, true)
	require.NoError(t, err, "publish failure does not fail the save")
	pub.AssertExpectations(t)

	var evt PostSavedEvent
	require.NoError(t, json.Unmarshal(payload, &evt))
	assert.Equal(t, "post.saved", evt.Type)
	assert.Equal(t, post.ID, evt.PostID)
	assert.True(t, evt.Created)
}

func TestGetAndList(t *testing.T) {
	ctx := context.Background()
	f := newPostFixture(t)

	_, err := f.svc.Get(ctx, 99)
	assert.ErrorIs(t, err, ErrPostNotFound)

	post := &model.Post{}
	_, err = f.svc.Save(ctx, post, PostInput{Title: "T"}, nil, f.owner.ID, true)
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "T", got.Title)
	assert.Equal(t, "", f.svc.ImageURL(got))

	list, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
