package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/robcarmo/puppies-api/internal/model"
)

type PostRepository interface {
	Create(ctx context.Context, p *model.Post) error
	GetByID(ctx context.Context, id string) (*model.Post, error)
	GetByIDs(ctx context.Context, ids []string) ([]*model.Post, error)
	// ListByAuthorBefore 按 (created_at, id) 降序取某作者的帖子，供拉模式合并
	ListByAuthorBefore(ctx context.Context, authorID string, beforeScore int64, beforeID string, limit int) ([]*model.Post, error)
	// ListRecentBefore 按 (created_at, id) 降序取全站最近帖子
	ListRecentBefore(ctx context.Context, beforeScore int64, beforeID string, limit int) ([]*model.Post, error)
	// ListCreatedAfter 补偿扫描用：最近窗口内创建的帖子
	ListCreatedAfter(ctx context.Context, since time.Time, limit int) ([]*model.Post, error)
	// DeleteCascade 删除帖子并级联清理 feed 项、点赞与评论
	DeleteCascade(ctx context.Context, id string) error
}

type postRepository struct{ db *gorm.DB }

func NewPostRepository(db *gorm.DB) PostRepository { return &postRepository{db: db} }

func (r *postRepository) Create(ctx context.Context, p *model.Post) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*model.Post, error) {
	var p model.Post
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *postRepository) GetByIDs(ctx context.Context, ids []string) ([]*model.Post, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var res []*model.Post
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&res).Error
	return res, err
}

func (r *postRepository) ListByAuthorBefore(ctx context.Context, authorID string, beforeScore int64, beforeID string, limit int) ([]*model.Post, error) {
	q := r.db.WithContext(ctx).Where("author_id = ?", authorID)
	if beforeID != "" {
		before := time.Unix(0, beforeScore)
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", before, before, beforeID)
	}
	var res []*model.Post
	err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&res).Error
	return res, err
}

func (r *postRepository) ListRecentBefore(ctx context.Context, beforeScore int64, beforeID string, limit int) ([]*model.Post, error) {
	q := r.db.WithContext(ctx)
	if beforeID != "" {
		before := time.Unix(0, beforeScore)
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", before, before, beforeID)
	}
	var res []*model.Post
	err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&res).Error
	return res, err
}

func (r *postRepository) ListCreatedAfter(ctx context.Context, since time.Time, limit int) ([]*model.Post, error) {
	var res []*model.Post
	err := r.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Order("created_at").
		Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *postRepository) DeleteCascade(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&model.FeedEntry{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", id).Delete(&model.Like{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", id).Delete(&model.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", id).Delete(&model.Outbox{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&model.Post{}).Error
	})
}
