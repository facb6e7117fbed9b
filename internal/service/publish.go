package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/robcarmo/puppies-api/internal/model"
	"github.com/robcarmo/puppies-api/pkg/logger"
)

var ErrEmptyContent = errors.New("post content cannot be empty")

// Publisher 负责事务内写 posts + outbox，再同步做扇出决策。
// 决策或入队失败不回滚发帖：outbox 行即持久化任务，补偿扫描会接管。
type Publisher struct {
	db         *gorm.DB
	dispatcher *Dispatcher
}

func NewPublisher(db *gorm.DB, dispatcher *Dispatcher) *Publisher {
	return &Publisher{db: db, dispatcher: dispatcher}
}

// Publish 在一个事务内落地 Post 与 Outbox 事件，提交后触发扇出决策
func (p *Publisher) Publish(ctx context.Context, authorID, content, mediaURL, mediaType string) (*model.Post, error) {
	if content == "" && mediaURL == "" {
		return nil, ErrEmptyContent
	}
	now := time.Now()
	post := &model.Post{
		ID:        uuid.New().String(),
		AuthorID:  authorID,
		Content:   content,
		MediaURL:  mediaURL,
		MediaType: mediaType,
		CreatedAt: now,
		UpdatedAt: now,
	}
	out := &model.Outbox{ID: uuid.New().String(), PostID: post.ID, AuthorID: authorID, CreatedAt: now, Status: "pending"}
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(post).Error; err != nil {
			return err
		}
		return tx.Create(out).Error
	})
	if err != nil {
		return nil, err
	}

	if _, dErr := p.dispatcher.Plan(ctx, post, out); dErr != nil {
		// 发帖已提交，策略决策留给补偿
		logger.Warn("dispatch plan failed, left to sweep",
			zap.String("post", post.ID), zap.Error(dErr))
	}
	return post, nil
}
