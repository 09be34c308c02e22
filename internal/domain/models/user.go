package models

import "time"

type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	OperatorID   *int64    `json:"operatorId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}
