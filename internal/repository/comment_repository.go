package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/robcarmo/puppies-api/internal/model"
)

type CommentRepository interface {
	// ListByPostBefore 按 (created_at, id) 降序键集分页
	ListByPostBefore(ctx context.Context, postID string, beforeScore int64, beforeID string, limit int) ([]*model.Comment, error)
	CountByPost(ctx context.Context, postID string) (int64, error)
}

type commentRepository struct{ db *gorm.DB }

func NewCommentRepository(db *gorm.DB) CommentRepository { return &commentRepository{db: db} }

func (r *commentRepository) ListByPostBefore(ctx context.Context, postID string, beforeScore int64, beforeID string, limit int) ([]*model.Comment, error) {
	q := r.db.WithContext(ctx).Where("post_id = ?", postID)
	if beforeID != "" {
		before := time.Unix(0, beforeScore)
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", before, before, beforeID)
	}
	var res []*model.Comment
	err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&res).Error
	return res, err
}

func (r *commentRepository) CountByPost(ctx context.Context, postID string) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Comment{}).Where("post_id = ?", postID).Count(&cnt).Error
	return cnt, err
}
