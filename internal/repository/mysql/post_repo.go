package mysql

import (
	"context"

	"CMS_Blog/internal/model"

	"gorm.io/gorm"
)

// postColumns 编辑时整体覆盖的列；timestamp 只在插入时写入
var postColumns = []string{"title", "author", "body", "image_path", "user_id"}

type PostRepository struct {
	DB *gorm.DB
}

func NewPostRepository(db *gorm.DB) *PostRepository {
	return &PostRepository{DB: db}
}

func (r *PostRepository) FindByID(ctx context.Context, id uint64) (*model.Post, error) {
	var post model.Post
	err := r.DB.WithContext(ctx).First(&post, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &post, nil
}

// List 全量 feed，新帖在前
func (r *PostRepository) List(ctx context.Context) ([]model.Post, error) {
	var list []model.Post
	err := r.DB.WithContext(ctx).
		Order("timestamp DESC, id DESC").
		Find(&list).Error
	return list, err
}

// Save 单事务提交：新帖插入，旧帖按列覆盖
func (r *PostRepository) Save(ctx context.Context, post *model.Post, isNew bool) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if isNew {
			return tx.Create(post).Error
		}
		return tx.Model(post).Select(postColumns).Updates(post).Error
	})
}
