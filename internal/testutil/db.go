// Package testutil opens throwaway databases for repository and handler tests.
package testutil

import (
	"fmt"

	"github.com/frahmantamala/isp-billing/internal/core/datamodel/notification"
	"github.com/frahmantamala/isp-billing/internal/core/datamodel/payment"
	"github.com/frahmantamala/isp-billing/internal/core/datamodel/sms"
	"github.com/frahmantamala/isp-billing/internal/core/datamodel/user"
	"github.com/jmoiron/sqlx"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Models lists every table the service owns.
func Models() []interface{} {
	return []interface{}{
		&user.User{},
		&user.Permission{},
		&user.UserPermission{},
		&payment.Transaction{},
		&payment.SettlementFailure{},
		&notification.Notification{},
		&sms.PaymentNotification{},
	}
}

// NewDB returns an in-memory sqlite database with the full schema migrated.
// A single connection is kept so every caller sees the same database.
func NewDB() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// SQLX wraps the connection behind db for code that queries through sqlx.
func SQLX(db *gorm.DB) (*sqlx.DB, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	return sqlx.NewDb(sqlDB, "sqlite3"), nil
}

// SeedUser inserts an active user with the given permissions and returns its id.
func SeedUser(db *gorm.DB, email, phone string, permissions ...string) (int64, error) {
	u := &user.User{Email: email, Name: email, Phone: phone, PasswordHash: "x", IsActive: true}
	if err := db.Create(u).Error; err != nil {
		return 0, err
	}
	for _, name := range permissions {
		perm := user.Permission{Name: name}
		if err := db.Where(user.Permission{Name: name}).FirstOrCreate(&perm).Error; err != nil {
			return 0, err
		}
		if err := db.Create(&user.UserPermission{UserID: u.ID, PermissionID: perm.ID}).Error; err != nil {
			return 0, err
		}
	}
	return u.ID, nil
}
