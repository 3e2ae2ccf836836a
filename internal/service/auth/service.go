package auth

import (
	"context"
	"errors"

	"clientportal/internal/model"
	"clientportal/internal/repository"
	"clientportal/internal/util"
	"clientportal/pkg/rbac"
)

type Service struct {
	userRepo   *repository.UserRepository
	clientRepo *repository.ClientRepository
	jwtSecret  string
}

func NewService(userRepo *repository.UserRepository, clientRepo *repository.ClientRepository, jwtSecret string) *Service {
	return &Service{
		userRepo:   userRepo,
		clientRepo: clientRepo,
		jwtSecret:  jwtSecret,
	}
}

// RegisterClient creates a client account plus its client profile.
func (s *Service) RegisterClient(ctx context.Context, email, password, name, businessName, industry string) (*model.User, error) {
	hash, err := util.HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &model.User{
		Email:        email,
		PasswordHash: hash,
		Role:         rbac.RoleClient,
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		return nil, err
	}

	c := &model.Client{
		UserID:       u.ID,
		Name:         name,
		BusinessName: businessName,
		Industry:     industry,
		ContactEmail: email,
	}
	if err := s.clientRepo.Create(ctx, c); err != nil {
		return nil, err
	}

	return u, nil
}

// Login checks credentials and returns a signed JWT carrying the role.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return "", model.ErrInvalidCredentials
		}
		return "", err
	}

	if !util.CheckPassword(password, u.PasswordHash) {
		return "", model.ErrInvalidCredentials
	}

	return util.GenerateJWT(u.ID, u.Role, s.jwtSecret)
}
