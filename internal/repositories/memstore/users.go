package memstore

import (
	"context"
	"strings"
	"time"

	"matsched/internal/domain"
	"matsched/internal/domain/models"
)

func (v view) CreateUser(_ context.Context, u *models.User) error {
	defer v.lock()()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, other := range v.s.t.users {
		if other.Email == u.Email {
			return domain.ConflictError{Resource: "user", Msg: "email already registered"}
		}
	}
	u.ID = v.s.t.id()
	u.CreatedAt = time.Now().UTC()
	v.s.t.users[u.ID] = *u
	return nil
}

func (v view) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	defer v.lock()()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range v.s.t.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, domain.NotFoundError{Resource: "user"}
}
