package models

import (
	"log"

	"bitbucket.org/mmdatafocus/forecast_backend/config"
)

// MigrateTable runs AutoMigrate for every entity. Call after the DB is
// connected; can be skipped on startup via SKIP_MIGRATIONS.
func MigrateTable() {
	db := config.GetDB()
	err := db.AutoMigrate(
		&User{},
		&Project{},
		&AOPTarget{},
		&Entry{},
		&AuditLog{},
	)
	if err != nil {
		log.Fatalf("failed to migrate tables: %v", err)
	}
	log.Println("migrated tables")
}
