package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/robcarmo/puppies-api/config"
	"github.com/robcarmo/puppies-api/internal/cache"
	"github.com/robcarmo/puppies-api/internal/model"
	"github.com/robcarmo/puppies-api/internal/repository"
	"github.com/robcarmo/puppies-api/internal/service"
	"github.com/robcarmo/puppies-api/pkg/database"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	if k < 0 {
		k = 0
	}
	if k >= len(xs) {
		k = len(xs) - 1
	}
	return xs[k]
}

// 端到端扇出延迟：发帖 -> 全部粉丝 feed 物化完成
func main() {
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	rdb := must(cache.NewClient(cfg))

	fanRepo := repository.NewFanRepository(db)
	feedRepo := repository.NewFeedRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)

	counts := cache.NewFollowerCountCache(rdb, fanRepo, cfg.Fanout.FollowerCountTTL)
	hot := cache.NewHotAuthors(rdb)
	dispatcher := service.NewDispatcher(fanRepo, outboxRepo, counts, hot, nil,
		cfg.Fanout.PushThreshold, cfg.Fanout.BatchSize)
	publisher := service.NewPublisher(db, dispatcher)

	N := 20000
	POSTS := 100
	WORKERS := 8
	if s := os.Getenv("N"); s != "" {
		if v, e := strconv.Atoi(s); e == nil && v > 0 {
			N = v
		}
	}
	if s := os.Getenv("POSTS"); s != "" {
		if v, e := strconv.Atoi(s); e == nil && v > 0 {
			POSTS = v
		}
	}
	if s := os.Getenv("WORKERS"); s != "" {
		if v, e := strconv.Atoi(s); e == nil && v > 0 {
			WORKERS = v
		}
	}

	// clean tables for a reproducible run (ok for local bench)
	_ = db.Exec("TRUNCATE TABLE feed_entries, outbox, posts, fans, follows, users RESTART IDENTITY CASCADE").Error

	// seed one author and N fans
	ctx := context.Background()
	author := model.User{ID: "author0", Username: "author0", Email: "author0@example.com"}
	_ = db.Where("id = ?", author.ID).FirstOrCreate(&author).Error
	users := make([]model.User, N)
	for i := 0; i < N; i++ {
		id := uuid.New().String()
		users[i] = model.User{ID: id, Username: "u" + id[:8], Email: id[:8] + "@example.com"}
	}
	for i := 0; i < N; i += 1000 {
		end := i + 1000
		if end > N {
			end = N
		}
		sub := users[i:end]
		_ = db.Create(&sub).Error
	}
	for _, u := range users {
		_ = fanRepo.Create(ctx, author.ID, u.ID)
	}
	fmt.Printf("seeded author with %d fans\n", N)

	worker := service.NewFanoutWorker(db, fanRepo, feedRepo,
		WORKERS, cfg.Fanout.BatchSize, cfg.Fanout.ClaimLimit, cfg.Fanout.PollInterval)
	stop := worker.Start()
	defer stop(ctx)

	postIDs := make([]string, 0, POSTS)
	for i := 0; i < POSTS; i++ {
		post := must(publisher.Publish(ctx, author.ID, fmt.Sprintf("post %d", i), "", ""))
		postIDs = append(postIDs, post.ID)
	}

	// poll until all outbox events are done
	deadline := time.Now().Add(5 * time.Minute)
	for {
		var pending int64
		_ = db.Model(&model.Outbox{}).Where("status <> ?", "done").Count(&pending).Error
		if pending == 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}

	lats := make([]time.Duration, 0, POSTS)
	for _, id := range postIDs {
		ob, err := outboxRepo.GetByPostID(ctx, id)
		if err != nil || ob.ProcessedAt == nil {
			continue
		}
		lats = append(lats, ob.ProcessedAt.Sub(ob.CreatedAt))
	}
	var sum time.Duration
	for _, d := range lats {
		sum += d
	}
	fmt.Printf("N=%d POSTS=%d WORKERS=%d done=%d\n", N, POSTS, WORKERS, len(lats))
	if len(lats) > 0 {
		fmt.Printf("fanout latency: avg=%v p95=%v p99=%v\n",
			sum/time.Duration(len(lats)), pct(lats, 0.95), pct(lats, 0.99))
	}
}
