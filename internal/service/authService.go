package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/ds124wfegd/parking/internal/database"
	"github.com/ds124wfegd/parking/internal/entity"
)

const minPasswordLength = 6

type authService struct {
	userRepo   database.UserRepository
	secret     []byte
	expiration time.Duration
	now        func() time.Time
}

func NewAuthService(userRepo database.UserRepository, secret string, expiration time.Duration, now func() time.Time) AuthService {
	if now == nil {
		now = time.Now
	}
	return &authService{
		userRepo:   userRepo,
		secret:     []byte(secret),
		expiration: expiration,
		now:        now,
	}
}

type Claims struct {
	UserID int64       `json:"userId"`
	Role   entity.Role `json:"role"`
	jwt.RegisteredClaims
}

func (s *authService) Register(ctx context.Context, req *RegisterRequest) (*entity.User, error) {
	return s.createUser(ctx, req, entity.RoleUser)
}

func (s *authService) createUser(ctx context.Context, req *RegisterRequest, role entity.Role) (*entity.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, entity.Validation("invalid email address")
	}
	if len(req.Password) < minPasswordLength {
		return nil, entity.Validation("password must be at least %d characters", minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &entity.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: string(hash),
		Phone:        strings.TrimSpace(req.Phone),
		VehicleNo:    strings.TrimSpace(req.VehicleNo),
		CarType:      strings.TrimSpace(req.CarType),
		Role:         role,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	logrus.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("User registered")
	return user, nil
}

func (s *authService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.TrimSpace(req.Email))
	if errors.Is(err, entity.ErrUserNotFound) {
		return nil, entity.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, entity.ErrInvalidCredentials
	}

	token, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{Token: token, Role: user.Role}, nil
}

func (s *authService) issue(user *entity.User) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

func (s *authService) Verify(tokenString string) (entity.Identity, error) {
	if tokenString == "" {
		return entity.Identity{}, entity.ErrMissingToken
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid || claims.UserID == 0 {
		return entity.Identity{}, entity.ErrInvalidToken
	}
	if claims.Role != entity.RoleUser && claims.Role != entity.RoleAdmin {
		return entity.Identity{}, entity.ErrInvalidToken
	}

	return entity.Identity{UserID: claims.UserID, Role: claims.Role}, nil
}

func (s *authService) EnsureAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}

	_, err := s.userRepo.GetByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, entity.ErrUserNotFound) {
		return fmt.Errorf("failed to look up admin: %w", err)
	}

	_, err = s.createUser(ctx, &RegisterRequest{Name: "Administrator", Email: email, Password: password}, entity.RoleAdmin)
	if errors.Is(err, entity.ErrUserAlreadyExists) {
		return nil
	}
	return err
}
