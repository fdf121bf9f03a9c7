package cmd

import (
	"fmt"
	"log"

	"github.com/frahmantamala/isp-billing/internal/auth"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

type seedUser struct {
	Email       string
	Name        string
	Phone       string
	Permissions []string
}

var seedPermissions = []struct {
	Name string
	Desc string
}{
	{auth.PermissionAdmin, "full administrator"},
	{auth.PermissionViewReports, "Can view payment reports"},
}

var seedUsers = []seedUser{
	{Email: "admin@isp.local", Name: "Billing Admin", Phone: "254700000001", Permissions: []string{auth.PermissionAdmin, auth.PermissionViewReports}},
	{Email: "reports@isp.local", Name: "Finance Analyst", Phone: "254700000002", Permissions: []string{auth.PermissionViewReports}},
	{Email: "customer@isp.local", Name: "Sample Customer", Phone: "254700000000"},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed users and permissions for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer sqlDB.Close()

		db, err := initGorm(sqlDB)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		hash, err := auth.HashPassword("password", cfg.Security.BCryptCost)
		if err != nil {
			log.Fatalf("failed to hash password: %v", err)
		}

		if err := db.Transaction(func(tx *gorm.DB) error {
			if clearData {
				if err := clearSeedData(tx); err != nil {
					return err
				}
				fmt.Println("Cleared existing data")
			}
			return seed(tx, hash)
		}); err != nil {
			log.Fatalf("seed failed: %v", err)
		}

		fmt.Println("Seeded users; password for every user is \"password\"")
	},
}

func clearSeedData(tx *gorm.DB) error {
	for _, table := range []string{
		"payment_notifications",
		"notifications",
		"settlement_failures",
		"payment_transactions",
		"user_permissions",
		"permissions",
		"users",
	} {
		if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

func seed(tx *gorm.DB, passwordHash string) error {
	for _, p := range seedPermissions {
		if err := tx.Exec(
			"INSERT INTO permissions (name, description, created_at) VALUES (?, ?, now()) ON CONFLICT (name) DO NOTHING",
			p.Name, p.Desc,
		).Error; err != nil {
			return fmt.Errorf("insert permission %s: %w", p.Name, err)
		}
	}

	for _, u := range seedUsers {
		var userID int64
		row := tx.Raw("SELECT id FROM users WHERE email = ?", u.Email).Row()
		if err := row.Scan(&userID); err != nil {
			if err := tx.Raw(
				"INSERT INTO users (email, name, phone, password_hash, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, true, now(), now()) RETURNING id",
				u.Email, u.Name, u.Phone, passwordHash,
			).Row().Scan(&userID); err != nil {
				return fmt.Errorf("insert user %s: %w", u.Email, err)
			}
			fmt.Println("Seeded user:", u.Email)
		} else {
			fmt.Println("user already exists; will ensure permissions:", u.Email)
		}

		for _, perm := range u.Permissions {
			if err := tx.Exec(
				`INSERT INTO user_permissions (user_id, permission_id, created_at)
				 SELECT ?, id, now() FROM permissions WHERE name = ?
				 ON CONFLICT (user_id, permission_id) DO NOTHING`,
				userID, perm,
			).Error; err != nil {
				return fmt.Errorf("grant %s to %s: %w", perm, u.Email, err)
			}
		}
	}
	return nil
}
