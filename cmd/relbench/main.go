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

// 关注写路径对比：异步冗余（单写 + 队列落 fans） vs 同步双写
func main() {
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))

	userRepo := repository.NewUserRepository(db)
	followRepo := repository.NewFollowRepository(db)
	fanRepo := repository.NewFanRepository(db)
	feedRepo := repository.NewFeedRepository(db)
	replicator := service.NewFanReplicator(fanRepo, feedRepo, 100000)
	stop := replicator.Start(8)
	relSvc := service.NewRelationshipService(followRepo, fanRepo, userRepo, replicator)

	ctx := context.Background()

	N := 10000
	if s := os.Getenv("N"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			N = n
		}
	}
	CONC := 1
	if s := os.Getenv("CONC"); s != "" {
		if c, err := strconv.Atoi(s); err == nil && c > 0 {
			CONC = c
		}
	}
	PAGE := 50
	if s := os.Getenv("PAGE"); s != "" {
		if p, err := strconv.Atoi(s); err == nil && p > 0 {
			PAGE = p
		}
	}

	// seed users: u0 is celebrity; others follow u0
	celeb := model.User{ID: "u0", Username: "u0", Email: "u0@example.com"}
	_ = db.Where("id = ?", celeb.ID).FirstOrCreate(&celeb).Error
	users := make([]model.User, N)
	for i := 0; i < N; i++ {
		id := uuid.New().String()
		users[i] = model.User{ID: id, Username: "u" + id[:8], Email: id[:8] + "@example.com"}
	}
	_ = db.CreateInBatches(&users, 1000).Error

	maxQ := 0
	quitSample := make(chan struct{})
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if q := replicator.QueueLen(); q > maxQ {
					maxQ = q
				}
			case <-quitSample:
				return
			}
		}
	}()

	t0 := time.Now()
	asyncRecs := make([]time.Duration, 0, N)
	asyncCh := make(chan time.Duration, N)
	workers := CONC
	if workers > N {
		workers = N
	}
	errCh := make(chan error, workers)
	feed := make(chan int, N)
	for i := 0; i < N; i++ {
		feed <- i
	}
	close(feed)
	for w := 0; w < workers; w++ {
		go func() {
			for i := range feed {
				st := time.Now()
				_ = relSvc.Follow(ctx, users[i].ID, celeb.ID)
				asyncCh <- time.Since(st)
			}
			errCh <- nil
		}()
	}
	for w := 0; w < workers; w++ {
		<-errCh
	}
	close(asyncCh)
	for d := range asyncCh {
		asyncRecs = append(asyncRecs, d)
	}
	asyncDur := time.Since(t0)
	close(quitSample)

	drainStart := time.Now()
	time.Sleep(500 * time.Millisecond)

	// measure sync path (2 writes)
	t1 := time.Now()
	for i := 0; i < N; i++ {
		_ = followRepo.Create(ctx, celeb.ID, users[i].ID)
		_ = fanRepo.Create(ctx, users[i].ID, celeb.ID)
	}
	syncDur := time.Since(t1)

	q0 := time.Now()
	_, _ = fanRepo.ListFans(ctx, celeb.ID, 0, PAGE)
	fansDur := time.Since(q0)

	q1 := time.Now()
	_, _ = followRepo.ListFollowings(ctx, celeb.ID, 0, PAGE)
	follDur := time.Since(q1)

	_ = stop(context.Background())
	drainDur := time.Since(drainStart)

	fmt.Printf("N=%d, CONC=%d, PAGE=%d\n", N, CONC, PAGE)
	fmt.Printf("Async follow latency total: %v, per op: %v, p50: %v, p95: %v, p99: %v\n",
		asyncDur, asyncDur/time.Duration(N), pct(asyncRecs, 0.50), pct(asyncRecs, 0.95), pct(asyncRecs, 0.99))
	fmt.Printf("Sync (2 writes) total: %v, per op: %v\n", syncDur, syncDur/time.Duration(N))
	fmt.Printf("Query fans(%d) latency: %v\n", PAGE, fansDur)
	fmt.Printf("Query following(%d) latency: %v\n", PAGE, follDur)
	fmt.Printf("Replication drain: maxQueue=%d, drain=%v\n", maxQ, drainDur)
}
