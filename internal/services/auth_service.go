package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"matsched/internal/domain"
	"matsched/internal/domain/models"
	"matsched/internal/repositories"
	"matsched/internal/utils"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const tokenTTL = 24 * time.Hour

var ErrInvalidCredentials = errors.New("invalid email or password")

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// AuthService issues and checks HS256 identity tokens.
type AuthService struct {
	Store  repositories.Store
	Secret []byte
	Now    func() time.Time
}

// Login checks the password and returns a signed token for the user.
func (s AuthService) Login(ctx context.Context, email, password string) (string, models.User, error) {
	u, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if domain.IsNotFound(err) {
			return "", models.User{}, domain.ValidationError{Field: "email", Msg: ErrInvalidCredentials.Error(), Err: ErrInvalidCredentials}
		}
		return "", models.User{}, domain.InternalError{Msg: "load user", Err: err}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", models.User{}, domain.ValidationError{Field: "email", Msg: ErrInvalidCredentials.Error(), Err: ErrInvalidCredentials}
	}

	token, err := s.Issue(u)
	if err != nil {
		return "", models.User{}, domain.InternalError{Msg: "sign token", Err: err}
	}
	utils.LogEvent(utils.RequestIDFrom(ctx), "auth", "login", fmt.Sprintf("user_id=%d role=%s", u.ID, u.Role))
	return token, u, nil
}

// Register creates a user. Anyone may register as a passenger; drivers and
// admins are created by an admin of the operator they join.
func (s AuthService) Register(ctx context.Context, rc domain.RequestContext, in RegisterInput) (models.User, error) {
	role := strings.TrimSpace(in.Role)
	if role == "" {
		role = domain.RolePassenger
	}
	var operatorID *int64
	switch role {
	case domain.RolePassenger:
	case domain.RoleDriver, domain.RoleAdmin:
		if rc.Role != domain.RoleAdmin || rc.OperatorID == 0 {
			return models.User{}, forbidden("only operator admins create staff accounts")
		}
		op := rc.OperatorID
		operatorID = &op
	default:
		return models.User{}, domain.ValidationError{Field: "role", Msg: fmt.Sprintf("unknown role %q", role)}
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return models.User{}, domain.ValidationError{Field: "email", Msg: "invalid email"}
	}
	if len(in.Password) < 6 {
		return models.User{}, domain.ValidationError{Field: "password", Msg: "must be at least 6 characters"}
	}
	phone, ok := utils.NormalizePhone(in.Phone)
	if !ok {
		return models.User{}, domain.ValidationError{Field: "phone", Msg: "expected a Kenyan mobile number", Err: domain.ErrInvalidPhoneNumber}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, domain.InternalError{Msg: "hash password", Err: err}
	}
	u := models.User{
		Name:         utils.NormalizeSpace(in.Name),
		Email:        email,
		Phone:        phone,
		PasswordHash: string(hash),
		Role:         role,
		OperatorID:   operatorID,
	}
	if err := s.Store.Users().CreateUser(ctx, &u); err != nil {
		if domain.IsConflict(err) {
			return models.User{}, err
		}
		return models.User{}, domain.InternalError{Msg: "create user", Err: err}
	}
	utils.LogEvent(utils.RequestIDFrom(ctx), "auth", "registered", fmt.Sprintf("user_id=%d role=%s", u.ID, u.Role))
	return u, nil
}

// Issue signs a token carrying the user's id, role and operator.
func (s AuthService) Issue(u models.User) (string, error) {
	claims := jwt.MapClaims{
		"user_id": u.ID,
		"role":    u.Role,
		"exp":     nowOr(s.Now).Add(tokenTTL).Unix(),
	}
	if u.OperatorID != nil {
		claims["operator_id"] = *u.OperatorID
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
}

// Parse verifies a token and returns the identity it carries.
func (s AuthService) Parse(raw string) (domain.RequestContext, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(s.Now))
	}
	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return s.Secret, nil }, opts...)
	if err != nil {
		return domain.RequestContext{}, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.RequestContext{}, errors.New("unexpected claims")
	}

	rc := domain.RequestContext{}
	if v, ok := claims["user_id"].(float64); ok {
		rc.UserID = int64(v)
	}
	if v, ok := claims["operator_id"].(float64); ok {
		rc.OperatorID = int64(v)
	}
	rc.Role, _ = claims["role"].(string)
	if rc.UserID == 0 || rc.Role == "" {
		return domain.RequestContext{}, errors.New("token missing identity claims")
	}
	return rc, nil
}
