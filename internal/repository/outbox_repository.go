package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/robcarmo/puppies-api/internal/model"
)

type OutboxRepository interface {
	GetByPostID(ctx context.Context, postID string) (*model.Outbox, error)
	// ListUnplanned 尚未决策扇出策略的 pending 事件（调度器写入失败后由补偿接管）
	ListUnplanned(ctx context.Context, limit int) ([]*model.Outbox, error)
	MarkDone(ctx context.Context, id string, fanoutCount int64) error
	SetStrategy(ctx context.Context, id, strategy string) error
	// ResetStuck 将卡在 processing 超时的事件重置为 pending，返回重置条数
	ResetStuck(ctx context.Context, olderThan time.Time) (int64, error)
	// RequeuePullEvents 把某作者拉模式时期的事件重开为推模式 pending，返回条数。
	// 作者粉丝数回落、退出热点集合前调用，历史帖由物化 worker 补进粉丝 feed
	RequeuePullEvents(ctx context.Context, authorID string) (int64, error)
}

type outboxRepository struct{ db *gorm.DB }

func NewOutboxRepository(db *gorm.DB) OutboxRepository { return &outboxRepository{db: db} }

func (r *outboxRepository) GetByPostID(ctx context.Context, postID string) (*model.Outbox, error) {
	var ob model.Outbox
	if err := r.db.WithContext(ctx).Where("post_id = ?", postID).First(&ob).Error; err != nil {
		return nil, err
	}
	return &ob, nil
}

func (r *outboxRepository) ListUnplanned(ctx context.Context, limit int) ([]*model.Outbox, error) {
	var res []*model.Outbox
	err := r.db.WithContext(ctx).
		Where("status = ? AND strategy = ?", "pending", "").
		Order("created_at").
		Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *outboxRepository) MarkDone(ctx context.Context, id string, fanoutCount int64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.Outbox{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": "done", "processed_at": now, "fanout_count": fanoutCount}).Error
}

func (r *outboxRepository) SetStrategy(ctx context.Context, id, strategy string) error {
	return r.db.WithContext(ctx).Model(&model.Outbox{}).
		Where("id = ?", id).
		Update("strategy", strategy).Error
}

func (r *outboxRepository) RequeuePullEvents(ctx context.Context, authorID string) (int64, error) {
	tx := r.db.WithContext(ctx).Model(&model.Outbox{}).
		Where("author_id = ? AND strategy = ?", authorID, model.StrategyPull).
		Updates(map[string]any{
			"status": "pending", "strategy": model.StrategyPush,
			"processed_at": nil, "fanout_count": 0,
		})
	return tx.RowsAffected, tx.Error
}

func (r *outboxRepository) ResetStuck(ctx context.Context, olderThan time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).Model(&model.Outbox{}).
		Where("status = ? AND created_at < ?", "processing", olderThan).
		Update("status", "pending")
	return tx.RowsAffected, tx.Error
}
