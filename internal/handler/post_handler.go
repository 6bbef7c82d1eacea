package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"CMS_Blog/internal/middleware"
	"CMS_Blog/internal/model"
	"CMS_Blog/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type PostHandler struct {
	svc         *service.PostService
	sessions    *middleware.SessionManager
	logger      *zap.SugaredLogger
	imageSource string
}

// PostForm 帖子表单，图片走 multipart 的 image_path 字段
type PostForm struct {
	Title  string `form:"title" binding:"required,max=150"`
	Author string `form:"author" binding:"required,max=75"`
	Body   string `form:"body" binding:"required,max=800"`
}

type PostView struct {
	ID        uint64    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	ImageURL  string    `json:"image_url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	UserID    uint64    `json:"user_id"`
}

func NewPostHandler(svc *service.PostService, sessions *middleware.SessionManager, logger *zap.SugaredLogger, imageSource string) *PostHandler {
	return &PostHandler{
		svc:         svc,
		sessions:    sessions,
		logger:      logger,
		imageSource: imageSource,
	}
}

func (h *PostHandler) view(p *model.Post) PostView {
	return PostView{
		ID:        p.ID,
		Title:     p.Title,
		Author:    p.Author,
		Body:      p.Body,
		ImageURL:  h.svc.ImageURL(p),
		Timestamp: p.Timestamp,
		UserID:    p.UserID,
	}
}

// Home 帖子 feed
func (h *PostHandler) Home(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context())
	if err != nil {
		h.internalError(c, "list posts", err)
		return
	}
	views := make([]PostView, 0, len(list))
	for i := range list {
		views = append(views, h.view(&list[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"posts":   views,
		"flashes": h.sessions.Flashes(c),
	})
}

func (h *PostHandler) NewPostPage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"title":        "Create Post",
		"image_source": h.imageSource,
	})
}

// CreatePost 新建帖子
func (h *PostHandler) CreatePost(c *gin.Context) {
	h.save(c, &model.Post{}, true)
}

func (h *PostHandler) EditPostPage(c *gin.Context) {
	post, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"title":        "Edit Post",
		"post":         h.view(post),
		"image_source": h.imageSource,
	})
}

// UpdatePost 编辑帖子
func (h *PostHandler) UpdatePost(c *gin.Context) {
	post, ok := h.load(c)
	if !ok {
		return
	}
	h.save(c, post, false)
}

func (h *PostHandler) load(c *gin.Context) (*model.Post, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusNotFound, gin.H{"msg": "post not found"})
		return nil, false
	}
	post, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrPostNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"msg": "post not found"})
			return nil, false
		}
		h.internalError(c, "load post", err)
		return nil, false
	}
	return post, true
}

func (h *PostHandler) save(c *gin.Context, post *model.Post, isNew bool) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"msg": "unauthorized"})
		return
	}

	var form PostForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid params"})
		return
	}

	var upload *service.Upload
	fh, err := c.FormFile("image_path")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid upload"})
		return
	default:
		f, err := fh.Open()
		if err != nil {
			h.internalError(c, "open upload", err)
			return
		}
		defer f.Close()
		upload = &service.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Data:        f,
		}
	}

	in := service.PostInput{Title: form.Title, Author: form.Author, Body: form.Body}
	res, err := h.svc.Save(c.Request.Context(), post, in, upload, userID, isNew)
	if err != nil {
		h.internalError(c, "save post", err)
		return
	}
	if res.Attachment != nil {
		_ = h.sessions.AddFlash(c, "Image upload failed: "+res.Attachment.Err.Error())
	}
	c.Redirect(http.StatusFound, "/home")
}

func (h *PostHandler) internalError(c *gin.Context, op string, err error) {
	h.logger.Errorw("request failed", "op", op, "error", err)
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"msg": "internal error"})
}
