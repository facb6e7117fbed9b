package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/robcarmo/puppies-api/internal/cache"
	"github.com/robcarmo/puppies-api/internal/model"
	"github.com/robcarmo/puppies-api/internal/queue"
	"github.com/robcarmo/puppies-api/internal/repository"
	"github.com/robcarmo/puppies-api/pkg/logger"
	"github.com/robcarmo/puppies-api/pkg/metrics"
)

// DispatchPlan 一次发帖的扇出决策结果
type DispatchPlan struct {
	PostID        string
	Strategy      string
	FollowerCount int64
	Enqueued      int64
}

// Dispatcher 按作者粉丝数选择推/拉策略：
// 粉丝数 <= 阈值走推模式（物化到每个粉丝的 feed），否则走拉模式（读时合并）
type Dispatcher struct {
	fanRepo    repository.FanRepository
	outboxRepo repository.OutboxRepository
	counts     *cache.FollowerCountCache
	hot        *cache.HotAuthors
	producer   queue.Producer // 非 nil 时推模式任务经 Kafka 投递
	threshold  int64
	pageSize   int
}

func NewDispatcher(fanRepo repository.FanRepository, outboxRepo repository.OutboxRepository,
	counts *cache.FollowerCountCache, hot *cache.HotAuthors, producer queue.Producer,
	threshold int64, pageSize int) *Dispatcher {
	if threshold <= 0 {
		threshold = 10000
	}
	if pageSize <= 0 {
		pageSize = 500
	}
	return &Dispatcher{fanRepo: fanRepo, outboxRepo: outboxRepo, counts: counts,
		hot: hot, producer: producer, threshold: threshold, pageSize: pageSize}
}

// Plan 同步决策 + 入队，不做物化本身。
// 拉模式：outbox 直接置 done，作者进热点集合；
// 推模式：outbox 标记 push，由物化 worker 或 Kafka 消费端落地。
func (d *Dispatcher) Plan(ctx context.Context, post *model.Post, out *model.Outbox) (*DispatchPlan, error) {
	cnt, err := d.counts.Get(ctx, post.AuthorID)
	if err != nil {
		return nil, err
	}

	plan := &DispatchPlan{PostID: post.ID, FollowerCount: cnt}
	if cnt > d.threshold {
		plan.Strategy = model.StrategyPull
		if err := d.hot.Add(ctx, post.AuthorID); err != nil {
			return nil, err
		}
		if err := d.outboxRepo.SetStrategy(ctx, out.ID, model.StrategyPull); err != nil {
			return nil, err
		}
		if err := d.outboxRepo.MarkDone(ctx, out.ID, 0); err != nil {
			return nil, err
		}
		metrics.FanoutJobsEnqueued.WithLabelValues(model.StrategyPull).Inc()
		return plan, nil
	}

	plan.Strategy = model.StrategyPush
	// 粉丝数回落阈值以下：先把拉模式时期的事件重开成推模式，
	// 由物化 worker 把历史帖补进粉丝 feed，之后才退出热点集合，
	// 否则那些帖子在两条读路径之间都不可见
	if n, err := d.outboxRepo.RequeuePullEvents(ctx, post.AuthorID); err != nil {
		logger.Warn("requeue pull-era events failed", zap.String("author", post.AuthorID), zap.Error(err))
	} else {
		if n > 0 {
			logger.Info("requeued pull-era events", zap.String("author", post.AuthorID), zap.Int64("count", n))
		}
		if err := d.hot.Remove(ctx, post.AuthorID); err != nil {
			logger.Warn("remove hot author failed", zap.String("author", post.AuthorID), zap.Error(err))
		}
	}
	if err := d.outboxRepo.SetStrategy(ctx, out.ID, model.StrategyPush); err != nil {
		return nil, err
	}
	metrics.FanoutJobsEnqueued.WithLabelValues(model.StrategyPush).Inc()

	if d.producer != nil {
		if n, qErr := d.enqueueJobs(ctx, post); qErr != nil {
			// 入队失败不影响发帖；outbox 仍是 pending，由补偿重试
			logger.Warn("enqueue fanout jobs failed", zap.String("post", post.ID), zap.Error(qErr))
		} else {
			plan.Enqueued = n
		}
	}
	return plan, nil
}

// enqueueJobs 分页读粉丝并按批写入队列
func (d *Dispatcher) enqueueJobs(ctx context.Context, post *model.Post) (int64, error) {
	var total int64
	offset := 0
	now := time.Now()
	for {
		ids, err := d.fanRepo.ListFanIDs(ctx, post.AuthorID, offset, d.pageSize)
		if err != nil {
			return total, err
		}
		if len(ids) == 0 {
			return total, nil
		}
		jobs := make([]queue.Job, len(ids))
		for i, id := range ids {
			jobs[i] = queue.Job{OwnerUserID: id, PostID: post.ID, SourceUserID: post.AuthorID, EnqueuedAt: now}
		}
		if err := d.producer.Enqueue(ctx, jobs); err != nil {
			return total, err
		}
		total += int64(len(jobs))
		if len(ids) < d.pageSize {
			return total, nil
		}
		offset += d.pageSize
	}
}
