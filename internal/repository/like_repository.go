package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/robcarmo/puppies-api/internal/model"
)

type LikeRepository interface {
	Exists(ctx context.Context, userID, postID string) (bool, error)
	CountByPost(ctx context.Context, postID string) (int64, error)
}

type likeRepository struct{ db *gorm.DB }

func NewLikeRepository(db *gorm.DB) LikeRepository { return &likeRepository{db: db} }

func (r *likeRepository) Exists(ctx context.Context, userID, postID string) (bool, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Like{}).
		Where("user_id = ? AND post_id = ?", userID, postID).
		Count(&cnt).Error
	return cnt > 0, err
}

func (r *likeRepository) CountByPost(ctx context.Context, postID string) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Like{}).Where("post_id = ?", postID).Count(&cnt).Error
	return cnt, err
}
