package model

import "time"

type Post struct {
	ID     uint64 `gorm:"primaryKey"`
	Title  string `gorm:"size:150"`
	Author string `gorm:"size:75"`
	Body   string `gorm:"size:800"`
	// ImagePath is a blob reference: a retrieval URL, or a bare blob name for legacy rows.
	ImagePath *string   `gorm:"size:255"`
	Timestamp time.Time `gorm:"index"`
	UserID    uint64    `gorm:"index"`
	User      *User     `gorm:"foreignKey:UserID" json:"-"`
}

func (Post) TableName() string {
	return "posts"
}

// HasImage 是否挂载了图片
func (p *Post) HasImage() bool {
	return p.ImagePath != nil && *p.ImagePath != ""
}
