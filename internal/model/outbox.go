package model

import "time"

// 扇出策略
const (
	StrategyPush = "push"
	StrategyPull = "pull"
)

// Outbox 发帖事件外发盒，也是扇出任务的持久化队列
type Outbox struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)"`
	PostID      string    `gorm:"type:varchar(36);uniqueIndex"`
	AuthorID    string    `gorm:"type:varchar(36);index:idx_outbox_author"`
	CreatedAt   time.Time `gorm:"index"`
	Status      string    `gorm:"type:varchar(16);index"` // pending, processing, done
	Strategy    string    `gorm:"type:varchar(8)"`        // push, pull
	ProcessedAt *time.Time
	FanoutCount int64
}

func (Outbox) TableName() string { return "outbox" }
