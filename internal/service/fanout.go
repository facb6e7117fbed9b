package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/robcarmo/puppies-api/internal/model"
	"github.com/robcarmo/puppies-api/internal/queue"
	"github.com/robcarmo/puppies-api/internal/repository"
	"github.com/robcarmo/puppies-api/pkg/logger"
	"github.com/robcarmo/puppies-api/pkg/metrics"
)

// FanoutWorker 物化 worker：从 outbox claim 推模式事件，
// 分页读粉丝并批量 upsert feed_entries。at-least-once 语义下
// (user_id, post_id) 唯一键保证重复投递不会产生重复项。
type FanoutWorker struct {
	db           *gorm.DB
	fanRepo      repository.FanRepository
	feedRepo     repository.FeedRepository
	batchSize    int
	claimLimit   int
	pollInterval time.Duration
	workers      int
}

func NewFanoutWorker(db *gorm.DB, fanRepo repository.FanRepository, feedRepo repository.FeedRepository,
	workers, batchSize, claimLimit int, pollInterval time.Duration) *FanoutWorker {
	if workers <= 0 {
		workers = 4
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	if claimLimit <= 0 {
		claimLimit = 64
	}
	if pollInterval <= 0 {
		pollInterval = 50 * time.Millisecond
	}
	return &FanoutWorker{db: db, fanRepo: fanRepo, feedRepo: feedRepo,
		workers: workers, batchSize: batchSize, claimLimit: claimLimit, pollInterval: pollInterval}
}

// Start 启动若干 worker 轮询处理 outbox；返回停止函数。
func (w *FanoutWorker) Start() func(context.Context) error {
	stop := make(chan struct{})
	for i := 0; i < w.workers; i++ {
		go w.loop(stop)
	}
	return func(ctx context.Context) error { close(stop); return nil }
}

func (w *FanoutWorker) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := w.ProcessOnce(context.Background()); err != nil {
				logger.Error("fanout tick failed", zap.Error(err))
			}
		}
	}
}

// ProcessOnce claim 一批推模式 pending 事件并物化
func (w *FanoutWorker) ProcessOnce(ctx context.Context) error {
	type ob struct {
		ID        string
		PostID    string
		AuthorID  string
		CreatedAt time.Time
	}
	claimSQL := `
        SELECT id, post_id, author_id, created_at
        FROM outbox
        WHERE status = 'pending' AND strategy = 'push'
        ORDER BY created_at
        LIMIT ?`
	if w.db.Dialector.Name() == "postgres" {
		// 多 worker 并行 claim 互不阻塞
		claimSQL += " FOR UPDATE SKIP LOCKED"
	}

	var batch []ob
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Raw(claimSQL, w.claimLimit).Scan(&batch).Error; err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		ids := make([]string, len(batch))
		for i, b := range batch {
			ids[i] = b.ID
		}
		return tx.Model(&model.Outbox{}).Where("id IN ?", ids).Update("status", "processing").Error
	})
	if err != nil {
		return err
	}

	for _, b := range batch {
		total, mErr := w.materialize(ctx, b.PostID, b.AuthorID, b.CreatedAt)
		if mErr != nil {
			// 保持 processing，由补偿重置后重试
			logger.Error("materialize failed", zap.String("post", b.PostID), zap.Error(mErr))
			continue
		}
		now := time.Now()
		if uErr := w.db.WithContext(ctx).Model(&model.Outbox{}).
			Where("id = ?", b.ID).
			Updates(map[string]any{"status": "done", "processed_at": now, "fanout_count": total}).Error; uErr != nil {
			logger.Error("mark outbox done failed", zap.String("outbox", b.ID), zap.Error(uErr))
			continue
		}
		if !b.CreatedAt.IsZero() {
			metrics.FanoutLatency.Observe(time.Since(b.CreatedAt).Seconds())
		}
	}
	return nil
}

// materialize 分页扇出到全部粉丝；score 取帖子创建时间，feed 排序与物化顺序无关
func (w *FanoutWorker) materialize(ctx context.Context, postID, authorID string, postCreatedAt time.Time) (int64, error) {
	var total int64
	offset := 0
	score := postCreatedAt.UnixNano()
	for {
		ids, err := w.fanRepo.ListFanIDs(ctx, authorID, offset, w.batchSize)
		if err != nil {
			return total, err
		}
		if len(ids) == 0 {
			return total, nil
		}
		entries := make([]model.FeedEntry, len(ids))
		now := time.Now()
		for i, fanID := range ids {
			entries[i] = model.FeedEntry{
				ID:           uuid.New().String(),
				UserID:       fanID,
				PostID:       postID,
				SourceUserID: authorID,
				Score:        score,
				CreatedAt:    now,
			}
		}
		written, err := w.feedRepo.BatchUpsert(ctx, entries)
		if err != nil {
			return total, err
		}
		metrics.FanoutEntriesWritten.Add(float64(written))
		total += written
		if len(ids) < w.batchSize {
			return total, nil
		}
		offset += w.batchSize
	}
}

// MaterializeJob Kafka 传输下的单条投递；ack 前必须落库
func (w *FanoutWorker) MaterializeJob(ctx context.Context, job queue.Job) error {
	var post model.Post
	if err := w.db.WithContext(ctx).Where("id = ?", job.PostID).First(&post).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			// 帖子已删除，投递作废
			return nil
		}
		return err
	}
	entry := model.FeedEntry{
		ID:           uuid.New().String(),
		UserID:       job.OwnerUserID,
		PostID:       job.PostID,
		SourceUserID: job.SourceUserID,
		Score:        post.CreatedAt.UnixNano(),
		CreatedAt:    time.Now(),
	}
	tx := w.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&entry)
	if tx.Error != nil {
		return tx.Error
	}
	metrics.FanoutEntriesWritten.Add(float64(tx.RowsAffected))
	return nil
}
