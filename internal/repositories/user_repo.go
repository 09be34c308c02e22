package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	intdb "matsched/internal/db"
	"matsched/internal/domain"
	"matsched/internal/domain/models"
)

type UserRepo struct {
	DB intdb.DBTX
}

func (r UserRepo) CreateUser(ctx context.Context, u *models.User) error {
	now := time.Now().UTC()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO users (name, email, phone, password_hash, role, operator_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.Name, u.Email, u.Phone, u.PasswordHash, u.Role, intdb.NullInt64(u.OperatorID), now)
	if intdb.IsDuplicateKey(err) {
		return domain.ConflictError{Resource: "user", Msg: "email already registered", Err: err}
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	u.CreatedAt = now
	return nil
}

func (r UserRepo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	var operator sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, name, email, phone, password_hash, role, operator_id, created_at
		FROM users WHERE email = ? LIMIT 1`, strings.ToLower(strings.TrimSpace(email))).Scan(
		&u.ID, &u.Name, &u.Email, &u.Phone, &u.PasswordHash, &u.Role, &operator, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, domain.NotFoundError{Resource: "user", Err: err}
	}
	u.OperatorID = intdb.Int64Ptr(operator)
	return u, err
}
