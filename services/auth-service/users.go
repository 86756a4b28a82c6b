package main

import (
	"context"
	"errors"

	"ai-mistake-tracker/pkg/apperr"
	"ai-mistake-tracker/pkg/models"

	"gorm.io/gorm"
)

// userRepository is the persistence the handlers need. Lookups that miss
// return apperr.ErrNotFound.
type userRepository interface {
	Create(ctx context.Context, u *models.User) error
	ByEmail(ctx context.Context, email string) (*models.User, error)
	ByID(ctx context.Context, id string) (*models.User, error)
	Save(ctx context.Context, u *models.User) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, role models.Role, offset, limit int) ([]models.User, int64, error)
	SetRole(ctx context.Context, id string, role models.Role) (*models.User, error)
	Ping(ctx context.Context) error
}

type gormUsers struct {
	db *gorm.DB
}

func (g gormUsers) Create(ctx context.Context, u *models.User) error {
	err := g.db.WithContext(ctx).Create(u).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.InvalidArgument("email already registered")
	}
	return err
}

func (g gormUsers) ByEmail(ctx context.Context, email string) (*models.User, error) {
	return g.first(ctx, "email = ?", email)
}

func (g gormUsers) ByID(ctx context.Context, id string) (*models.User, error) {
	return g.first(ctx, "id = ?", id)
}

func (g gormUsers) first(ctx context.Context, query string, arg string) (*models.User, error) {
	var u models.User
	err := g.db.WithContext(ctx).Where(query, arg).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (g gormUsers) Save(ctx context.Context, u *models.User) error {
	return g.db.WithContext(ctx).Save(u).Error
}

// Delete soft-deletes the user; the row keeps its id for audit.
func (g gormUsers) Delete(ctx context.Context, id string) error {
	res := g.db.WithContext(ctx).Delete(&models.User{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}

// List returns users newest first, optionally restricted to one role, with
// the total number of matching users.
func (g gormUsers) List(ctx context.Context, role models.Role, offset, limit int) ([]models.User, int64, error) {
	q := g.db.WithContext(ctx).Model(&models.User{})
	if role != "" {
		q = q.Where("role = ?", role)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	users := make([]models.User, 0)
	err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (g gormUsers) SetRole(ctx context.Context, id string, role models.Role) (*models.User, error) {
	res := g.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("role", role)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFound("user not found")
	}
	return g.ByID(ctx, id)
}

func (g gormUsers) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
