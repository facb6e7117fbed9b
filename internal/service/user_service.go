package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/robcarmo/puppies-api/internal/model"
	"github.com/robcarmo/puppies-api/internal/repository"
)

// UserService 注册与资料读取。凭证存储由外围服务负责，这里不落密码。
type UserService interface {
	Register(ctx context.Context, username, email, fullName, bio, avatarURL string) (*model.User, error)
	Get(ctx context.Context, id string) (*model.User, error)
}

type userService struct {
	userRepo repository.UserRepository
}

func NewUserService(userRepo repository.UserRepository) UserService {
	return &userService{userRepo: userRepo}
}

func (s *userService) Register(ctx context.Context, username, email, fullName, bio, avatarURL string) (*model.User, error) {
	now := time.Now()
	u := &model.User{
		ID:        uuid.New().String(),
		Username:  username,
		Email:     email,
		FullName:  fullName,
		Bio:       bio,
		AvatarURL: avatarURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *userService) Get(ctx context.Context, id string) (*model.User, error) {
	return s.userRepo.GetByID(ctx, id)
}
