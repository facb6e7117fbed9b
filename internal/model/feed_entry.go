package model

import "time"

// FeedEntry 物化的时间线项：post 出现在 user 的 feed 中，来源为 source_user
// 仅由物化 worker 写入，其他路径只读；(user_id, post_id) 唯一保证扇出幂等
type FeedEntry struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)"`
	UserID       string    `gorm:"type:varchar(36);index:idx_feed_user;uniqueIndex:ux_feed_user_post"`
	PostID       string    `gorm:"type:varchar(36);index:idx_feed_post;uniqueIndex:ux_feed_user_post"`
	SourceUserID string    `gorm:"type:varchar(36);index:idx_feed_source"`
	// Score 取帖子 created_at 的 unixnano，读取按 (score, post_id) 降序
	Score     int64     `gorm:"index:idx_feed_user_score"`
	CreatedAt time.Time
}

func (FeedEntry) TableName() string { return "feed_entries" }
