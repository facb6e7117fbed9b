package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"strconv"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/robcarmo/puppies-api/config"
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

// 造一批用户、关注关系和帖子，方便本地联调
func main() {
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	if err := db.AutoMigrate(
		&model.User{}, &model.Post{}, &model.Follow{}, &model.Fan{},
		&model.FeedEntry{}, &model.Like{}, &model.Comment{}, &model.Outbox{},
	); err != nil {
		panic(err)
	}

	N := 1000
	if s := os.Getenv("N"); s != "" {
		if v, e := strconv.Atoi(s); e == nil && v > 0 {
			N = v
		}
	}
	FOLLOWS := 20
	if s := os.Getenv("FOLLOWS"); s != "" {
		if v, e := strconv.Atoi(s); e == nil && v > 0 {
			FOLLOWS = v
		}
	}

	ctx := context.Background()
	followRepo := repository.NewFollowRepository(db)
	fanRepo := repository.NewFanRepository(db)

	users := make([]model.User, N)
	for i := range users {
		users[i] = model.User{
			ID:        uuid.New().String(),
			Username:  fmt.Sprintf("%s_%04d", gofakeit.Username(), i),
			Email:     fmt.Sprintf("%04d_%s", i, gofakeit.Email()),
			FullName:  gofakeit.Name(),
			Bio:       gofakeit.Sentence(8),
			AvatarURL: gofakeit.ImageURL(128, 128),
			Age:       gofakeit.Number(18, 60),
		}
	}
	for i := 0; i < N; i += 500 {
		end := i + 500
		if end > N {
			end = N
		}
		sub := users[i:end]
		if err := db.Create(&sub).Error; err != nil {
			panic(err)
		}
	}
	fmt.Printf("seeded %d users\n", N)

	edges := 0
	for i := range users {
		for j := 0; j < FOLLOWS; j++ {
			to := users[rand.Intn(N)]
			if to.ID == users[i].ID {
				continue
			}
			_ = followRepo.Create(ctx, users[i].ID, to.ID)
			_ = fanRepo.Create(ctx, to.ID, users[i].ID)
			edges++
		}
	}
	fmt.Printf("seeded ~%d follow edges\n", edges)

	posts := 0
	for i := range users {
		n := rand.Intn(3)
		for j := 0; j < n; j++ {
			p := model.Post{
				ID:        uuid.New().String(),
				AuthorID:  users[i].ID,
				Content:   gofakeit.Sentence(12),
				MediaType: "image",
				MediaURL:  gofakeit.ImageURL(640, 480),
			}
			if err := db.Create(&p).Error; err == nil {
				posts++
			}
		}
	}
	fmt.Printf("seeded %d posts\n", posts)
}
