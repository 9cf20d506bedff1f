package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmhealthfocus/bbms_backend/config"
	"bitbucket.org/mmhealthfocus/bbms_backend/utils"
	"gorm.io/gorm"
)

type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Username  string    `gorm:"size:50;not null;uniqueIndex" json:"username"`
	Password  string    `gorm:"size:100;not null" json:"-"`
	Email     string    `gorm:"size:100" json:"email"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	LastLogin *time.Time `json:"last_login"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Name     string `json:"name" binding:"required"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Email    string `json:"email"`
}

func (input *NewUser) validate(ctx context.Context) error {
	if len(input.Name) < 2 {
		return utils.NewValidationError("name", "name is required and must be at least 2 characters")
	}
	if len(input.Username) < 3 {
		return utils.NewValidationError("username", "username must be at least 3 characters")
	}
	if len(input.Password) < 6 {
		return utils.NewValidationError("password", "password must be at least 6 characters")
	}
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return utils.NewValidationError("email", "invalid email format")
	}
	return utils.ValidateUnique[User](ctx, "username", input.Username, 0)
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := User{
		Name:     input.Name,
		Username: input.Username,
		Password: string(hashed),
		Email:    input.Email,
		IsActive: utils.NewTrue(),
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Create(&user).Error
	if isDuplicateKeyErr(err) {
		return nil, utils.NewValidationError("username", "already exists")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Login verifies credentials and returns a signed token. The error message
// does not reveal whether the username or the password was wrong.
func Login(ctx context.Context, username string, password string) (string, *User, error) {
	db := config.GetDB()

	var user User
	err := db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, utils.NewValidationError("username", "invalid username or password")
	}
	if err != nil {
		return "", nil, err
	}

	if err := utils.ComparePassword(user.Password, password); err != nil {
		return "", nil, utils.NewValidationError("username", "invalid username or password")
	}
	if user.IsActive != nil && !*user.IsActive {
		return "", nil, utils.NewValidationError("username", "account is disabled")
	}

	token, err := utils.JwtGenerate(user.ID, user.Name)
	if err != nil {
		return "", nil, err
	}

	now := time.Now()
	err = db.WithContext(ctx).Model(&user).Update("last_login", now).Error
	if err != nil {
		config.LogError(config.GetLogger(), "models", "Login", "update last_login", username, err)
	}

	return token, &user, nil
}

func GetUser(ctx context.Context, id int) (*User, error) {
	return utils.FetchModel[User](ctx, id)
}
