package models

import (
	"context"
	"testing"

	"bitbucket.org/mmdatafocus/forecast_backend/config"
	"bitbucket.org/mmdatafocus/forecast_backend/utils"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm open: %v", err)
	}
	return NewStore(db), mock
}

func newTestRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_ADDRESS", mr.Addr())
	config.ConnectRedisWithRetry()
	return mr
}

func TestStoreCreateProjectInvalidatesListCache(t *testing.T) {
	mr := newTestRedis(t)
	store, mock := newMockStore(t)

	cached := []*Project{{ID: 1, Account: "acme", Name: "alpha"}}
	if err := utils.StoreRedisList[Project](cached, ""); err != nil {
		t.Fatalf("seed list cache: %v", err)
	}
	if !mr.Exists("ProjectList") {
		t.Fatal("list cache not seeded")
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO .projects.").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	project := &Project{Account: "acme", Name: "beta"}
	if err := store.CreateProject(context.Background(), project); err != nil {
		t.Fatalf("create project: %v", err)
	}

	if mr.Exists("ProjectList") {
		t.Error("cached project list survived project creation")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
