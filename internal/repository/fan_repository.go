package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/robcarmo/puppies-api/internal/model"
)

type FanRepository interface {
	Create(ctx context.Context, userID, fanID string) error
	Delete(ctx context.Context, userID, fanID string) error
	Count(ctx context.Context, userID string) (int64, error)
	ListFans(ctx context.Context, userID string, offset, limit int) ([]*model.Fan, error)
	// ListFanIDs 分页取粉丝 ID，供物化 worker 按批扇出
	ListFanIDs(ctx context.Context, userID string, offset, limit int) ([]string, error)
	// ListFanIDsCreatedBefore 只取关注边建立时间不晚于 cutoff 的粉丝。
	// 补偿回填按帖子创建时间过滤，取关后重新关注的粉丝不会被补回历史帖
	ListFanIDsCreatedBefore(ctx context.Context, userID string, cutoff time.Time, offset, limit int) ([]string, error)
}

type fanRepository struct{ db *gorm.DB }

func NewFanRepository(db *gorm.DB) FanRepository { return &fanRepository{db: db} }

func (r *fanRepository) Create(ctx context.Context, userID, fanID string) error {
	f := &model.Fan{ID: uuid.New().String(), UserID: userID, FanID: fanID}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(f).Error
}

func (r *fanRepository) Delete(ctx context.Context, userID, fanID string) error {
	return r.db.WithContext(ctx).Where("user_id = ? AND fan_id = ?", userID, fanID).Delete(&model.Fan{}).Error
}

func (r *fanRepository) Count(ctx context.Context, userID string) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Fan{}).Where("user_id = ?", userID).Count(&cnt).Error
	return cnt, err
}

func (r *fanRepository) ListFans(ctx context.Context, userID string, offset, limit int) ([]*model.Fan, error) {
	var res []*model.Fan
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at").Offset(offset).Limit(limit).Find(&res).Error
	return res, err
}

func (r *fanRepository) ListFanIDs(ctx context.Context, userID string, offset, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.Fan{}).
		Where("user_id = ?", userID).
		Order("created_at").
		Offset(offset).Limit(limit).
		Pluck("fan_id", &ids).Error
	return ids, err
}

func (r *fanRepository) ListFanIDsCreatedBefore(ctx context.Context, userID string, cutoff time.Time, offset, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.Fan{}).
		Where("user_id = ? AND created_at <= ?", userID, cutoff).
		Order("created_at").
		Offset(offset).Limit(limit).
		Pluck("fan_id", &ids).Error
	return ids, err
}
