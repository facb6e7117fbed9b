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

// feed 读路径延迟：物化流 + 热点作者直拉的两路合并分页
func main() {
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	rdb := must(cache.NewClient(cfg))

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	followRepo := repository.NewFollowRepository(db)
	feedRepo := repository.NewFeedRepository(db)

	hot := cache.NewHotAuthors(rdb)
	snapshots := cache.NewAuthorSnapshotCache(rdb, userRepo, cfg.Feed.SnapshotTTL)
	feedSvc := service.NewFeedService(feedRepo, postRepo, followRepo, hot, snapshots,
		cfg.Feed.DefaultLimit, cfg.Feed.MaxLimit, cfg.Feed.PullConcurrency, cfg.Feed.PullWindow, cfg.Feed.ReadTimeout)

	AUTHORS := 50 // followed normal authors (materialized)
	HOT := 2      // followed hot authors (pulled at read time)
	POSTS := 40   // posts per author
	READS := 500
	if s := os.Getenv("AUTHORS"); s != "" {
		if v, e := strconv.Atoi(s); e == nil && v > 0 {
			AUTHORS = v
		}
	}
	if s := os.Getenv("HOT"); s != "" {
		if v, e := strconv.Atoi(s); e == nil && v >= 0 {
			HOT = v
		}
	}
	if s := os.Getenv("POSTS"); s != "" {
		if v, e := strconv.Atoi(s); e == nil && v > 0 {
			POSTS = v
		}
	}
	if s := os.Getenv("READS"); s != "" {
		if v, e := strconv.Atoi(s); e == nil && v > 0 {
			READS = v
		}
	}

	_ = db.Exec("TRUNCATE TABLE feed_entries, outbox, posts, fans, follows, users RESTART IDENTITY CASCADE").Error

	ctx := context.Background()
	reader := model.User{ID: "reader0", Username: "reader0", Email: "reader0@example.com"}
	_ = db.Where("id = ?", reader.ID).FirstOrCreate(&reader).Error

	seedAuthor := func(i int, isHot bool) string {
		id := uuid.New().String()
		u := model.User{ID: id, Username: fmt.Sprintf("a%d_%s", i, id[:6]), Email: id[:8] + "@example.com"}
		_ = db.Create(&u).Error
		_ = followRepo.Create(ctx, reader.ID, id)
		entries := make([]model.FeedEntry, 0, POSTS)
		for j := 0; j < POSTS; j++ {
			at := time.Now().Add(-time.Duration(j) * time.Minute)
			p := model.Post{ID: uuid.New().String(), AuthorID: id, Content: fmt.Sprintf("post %d", j), CreatedAt: at}
			_ = db.Create(&p).Error
			if !isHot {
				entries = append(entries, model.FeedEntry{
					ID: uuid.New().String(), UserID: reader.ID, PostID: p.ID,
					SourceUserID: id, Score: at.UnixNano(),
				})
			}
		}
		if len(entries) > 0 {
			_, _ = feedRepo.BatchUpsert(ctx, entries)
		}
		if isHot {
			_ = hot.Add(ctx, id)
		}
		return id
	}
	for i := 0; i < AUTHORS; i++ {
		seedAuthor(i, false)
	}
	for i := 0; i < HOT; i++ {
		seedAuthor(AUTHORS+i, true)
	}
	fmt.Printf("seeded reader following %d authors (%d hot), %d posts each\n", AUTHORS+HOT, HOT, POSTS)

	firstPage := make([]time.Duration, 0, READS)
	deepPage := make([]time.Duration, 0, READS)
	for i := 0; i < READS; i++ {
		st := time.Now()
		page := must(feedSvc.GetFeed(ctx, reader.ID, "", 20))
		firstPage = append(firstPage, time.Since(st))
		if page.NextCursor == "" {
			continue
		}
		st = time.Now()
		_ = must(feedSvc.GetFeed(ctx, reader.ID, page.NextCursor, 20))
		deepPage = append(deepPage, time.Since(st))
	}

	fmt.Printf("AUTHORS=%d HOT=%d POSTS=%d READS=%d\n", AUTHORS, HOT, POSTS, READS)
	fmt.Printf("first page:  p50=%v p95=%v p99=%v\n", pct(firstPage, 0.50), pct(firstPage, 0.95), pct(firstPage, 0.99))
	fmt.Printf("second page: p50=%v p95=%v p99=%v\n", pct(deepPage, 0.50), pct(deepPage, 0.95), pct(deepPage, 0.99))
}
