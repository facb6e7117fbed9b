package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/robcarmo/puppies-api/config"
	"github.com/robcarmo/puppies-api/internal/cache"
	"github.com/robcarmo/puppies-api/internal/model"
	"github.com/robcarmo/puppies-api/internal/repository"
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

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range vs {
		sum += v
	}
	return sum / time.Duration(len(vs))
}

// 读路径缓存收益：作者快照 MGET 与粉丝数缓存 vs 直查主库
func main() {
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	rdb := must(cache.NewClient(cfg))

	ctx := context.Background()

	N := 20000
	REQS := 3000
	BATCH := 20 // authors hydrated per feed page
	if s := os.Getenv("N"); s != "" {
		if v, e := strconv.Atoi(s); e == nil && v > 0 {
			N = v
		}
	}
	if s := os.Getenv("REQS"); s != "" {
		if v, e := strconv.Atoi(s); e == nil && v > 0 {
			REQS = v
		}
	}
	if s := os.Getenv("BATCH"); s != "" {
		if v, e := strconv.Atoi(s); e == nil && v > 0 {
			BATCH = v
		}
	}

	_ = db.Exec("TRUNCATE TABLE fans, users RESTART IDENTITY CASCADE").Error
	rdb.FlushAll(ctx)

	users := make([]model.User, N)
	for i := 0; i < N; i++ {
		id := uuid.New().String()
		users[i] = model.User{ID: id, Username: fmt.Sprintf("user_%d", i), Email: fmt.Sprintf("user_%d@example.com", i), AvatarURL: "https://cdn.example.com/a.png"}
	}
	_ = db.CreateInBatches(&users, 1000).Error

	userRepo := repository.NewUserRepository(db)
	fanRepo := repository.NewFanRepository(db)
	snapshots := cache.NewAuthorSnapshotCache(rdb, userRepo, 10*time.Minute)
	counts := cache.NewFollowerCountCache(rdb, fanRepo, 30*time.Second)

	// celebrity with N/2 fans for the count path
	celeb := users[0]
	fans := make([]model.Fan, N/2)
	for i := range fans {
		fans[i] = model.Fan{ID: uuid.NewString(), UserID: celeb.ID, FanID: users[i+1].ID}
	}
	_ = db.CreateInBatches(&fans, 1000).Error
	fmt.Printf("seeded %d users, celebrity with %d fans\n", N, N/2)

	rnd := rand.New(rand.NewSource(42))
	pickBatch := func() []string {
		ids := make([]string, BATCH)
		for i := range ids {
			ids[i] = users[rnd.Intn(N)].ID
		}
		return ids
	}

	// author hydration: direct bulk load vs snapshot cache
	direct := make([]time.Duration, 0, REQS)
	for i := 0; i < REQS; i++ {
		ids := pickBatch()
		st := time.Now()
		if _, err := userRepo.GetByIDs(ctx, ids); err != nil {
			panic(err)
		}
		direct = append(direct, time.Since(st))
	}

	// warm pass then measured pass
	for i := 0; i < REQS; i++ {
		if _, err := snapshots.GetMany(ctx, pickBatch()); err != nil {
			panic(err)
		}
	}
	cached := make([]time.Duration, 0, REQS)
	for i := 0; i < REQS; i++ {
		ids := pickBatch()
		st := time.Now()
		if _, err := snapshots.GetMany(ctx, ids); err != nil {
			panic(err)
		}
		cached = append(cached, time.Since(st))
	}

	// follower count: direct COUNT vs cached
	countDirect := make([]time.Duration, 0, REQS)
	for i := 0; i < REQS; i++ {
		st := time.Now()
		if _, err := fanRepo.Count(ctx, celeb.ID); err != nil {
			panic(err)
		}
		countDirect = append(countDirect, time.Since(st))
	}
	countCached := make([]time.Duration, 0, REQS)
	for i := 0; i < REQS; i++ {
		st := time.Now()
		if _, err := counts.Get(ctx, celeb.ID); err != nil {
			panic(err)
		}
		countCached = append(countCached, time.Since(st))
	}

	keys := must(rdb.DBSize(ctx).Result())

	fmt.Printf("\nAuthor hydration (%d req, batch=%d)\n", REQS, BATCH)
	fmt.Printf("%-18s avg=%v p95=%v p99=%v\n", "DB bulk load", avg(direct), pct(direct, 0.95), pct(direct, 0.99))
	fmt.Printf("%-18s avg=%v p95=%v p99=%v\n", "Snapshot cache", avg(cached), pct(cached, 0.95), pct(cached, 0.99))
	fmt.Printf("\nFollower count (%d req, %d fans)\n", REQS, N/2)
	fmt.Printf("%-18s avg=%v p95=%v p99=%v\n", "DB count", avg(countDirect), pct(countDirect, 0.95), pct(countDirect, 0.99))
	fmt.Printf("%-18s avg=%v p95=%v p99=%v\n", "Cached count", avg(countCached), pct(countCached, 0.95), pct(countCached, 0.99))
	fmt.Printf("\ncache_keys=%d\n", keys)
}
