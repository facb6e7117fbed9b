package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/robcarmo/puppies-api/internal/model"
)

type FeedRepository interface {
	// BatchUpsert 批量写入 feed 项，(user_id, post_id) 冲突忽略；返回实际插入条数
	BatchUpsert(ctx context.Context, entries []model.FeedEntry) (int64, error)
	// ListByUserBefore 按 (score, post_id) 降序键集分页
	ListByUserBefore(ctx context.Context, userID string, beforeScore int64, beforeID string, limit int) ([]*model.FeedEntry, error)
	// ListUserIDsByPost 已收到该帖的用户集合，补偿扫描用
	ListUserIDsByPost(ctx context.Context, postID string) ([]string, error)
	CountByPost(ctx context.Context, postID string) (int64, error)
	// DeleteBySource 取关后清理：删除 owner feed 中来自 source 的全部项
	DeleteBySource(ctx context.Context, userID, sourceUserID string) error
	// DeleteOrphans 删除关注边已不存在的 feed 项，返回清理条数
	DeleteOrphans(ctx context.Context) (int64, error)
}

type feedRepository struct{ db *gorm.DB }

func NewFeedRepository(db *gorm.DB) FeedRepository { return &feedRepository{db: db} }

func (r *feedRepository) BatchUpsert(ctx context.Context, entries []model.FeedEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&entries)
	return tx.RowsAffected, tx.Error
}

func (r *feedRepository) ListByUserBefore(ctx context.Context, userID string, beforeScore int64, beforeID string, limit int) ([]*model.FeedEntry, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if beforeID != "" {
		q = q.Where("score < ? OR (score = ? AND post_id < ?)", beforeScore, beforeScore, beforeID)
	}
	var res []*model.FeedEntry
	err := q.Order("score DESC, post_id DESC").Limit(limit).Find(&res).Error
	return res, err
}

func (r *feedRepository) ListUserIDsByPost(ctx context.Context, postID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.FeedEntry{}).
		Where("post_id = ?", postID).
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *feedRepository) CountByPost(ctx context.Context, postID string) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.FeedEntry{}).Where("post_id = ?", postID).Count(&cnt).Error
	return cnt, err
}

func (r *feedRepository) DeleteBySource(ctx context.Context, userID, sourceUserID string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND source_user_id = ?", userID, sourceUserID).
		Delete(&model.FeedEntry{}).Error
}

func (r *feedRepository) DeleteOrphans(ctx context.Context) (int64, error) {
	tx := r.db.WithContext(ctx).Exec(`
        DELETE FROM feed_entries
        WHERE NOT EXISTS (
            SELECT 1 FROM follows
            WHERE follows.follower_id = feed_entries.user_id
              AND follows.followee_id = feed_entries.source_user_id
        )`)
	return tx.RowsAffected, tx.Error
}
