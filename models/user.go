package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/forecast_backend/config"
	"bitbucket.org/mmdatafocus/forecast_backend/utils"
	"gorm.io/gorm"
)

type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Username  string    `gorm:"size:100;uniqueIndex;not null" json:"username"`
	Name      string    `gorm:"size:255" json:"name"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	Email     string    `gorm:"size:255" json:"email"`
	Phone     string    `gorm:"size:50" json:"phone"`
	Role      UserRole  `gorm:"size:20;not null" json:"role"`
	IsActive  *bool     `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetUserByUsername(ctx context.Context, username string) (*User, error) {
	db := config.GetDB()
	var user User
	err := db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}

func GetUserById(ctx context.Context, id int) (*User, error) {
	if cached, err := utils.RetrieveRedis[User](id); err == nil && cached != nil {
		return cached, nil
	}

	db := config.GetDB()
	var user User
	err := db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	if err := utils.StoreRedis[User](&user, user.ID); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser validates email/phone before writing. Password must already be
// hashed by the caller.
func CreateUser(ctx context.Context, user *User) error {
	if user.Email != "" && !utils.IsValidEmail(user.Email) {
		return utils.NewValidationError("email is not valid")
	}
	if user.Phone != "" {
		if err := utils.ValidatePhoneNumber(user.Phone, utils.CountryCode); err != nil {
			return utils.NewValidationError("phone number is not valid")
		}
	}
	if _, err := ParseUserRole(string(user.Role)); err != nil {
		return utils.NewValidationError("role must be admin or manager")
	}

	db := config.GetDB()
	return db.WithContext(ctx).Create(user).Error
}

func ListManagers(ctx context.Context) ([]*User, error) {
	db := config.GetDB()
	var users []*User
	if err := db.WithContext(ctx).Model(&User{}).
		Where("role = ?", UserRoleManager).Order("name").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
