package queue

import (
	"context"
	"time"
)

// Job 一条扇出投递任务：把 post 写进 owner 的 feed
type Job struct {
	OwnerUserID  string    `json:"owner_user_id"`
	PostID       string    `json:"post_id"`
	SourceUserID string    `json:"source_user_id"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

// Producer 扇出任务生产端
type Producer interface {
	Enqueue(ctx context.Context, jobs []Job) error
	Close() error
}

// Handler 返回 nil 表示已持久化，消费端才可提交位点
type Handler func(ctx context.Context, job Job) error
