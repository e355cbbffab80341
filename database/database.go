package database

import (
	"context"
	"fmt"
	"time"

	"tuitionflow/config"
	"tuitionflow/models"
	"tuitionflow/storage"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenStateBackend builds the snapshot backend selected by STATE_BACKEND.
// The returned close func releases any connection it opened.
func OpenStateBackend(cfg *config.Config) (storage.Backend, func(), error) {
	switch cfg.StateBackend {
	case "mysql":
		db, err := ConnectMySQL(cfg)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewGormBackend(db), func() { Close(db) }, nil
	case "redis":
		rc, err := ConnectRedis(cfg)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewRedisBackend(rc, cfg.RedisKeyPrefix), func() { _ = rc.Close() }, nil
	default:
		fb, err := storage.NewFileBackend(cfg.StateDir)
		if err != nil {
			return nil, nil, err
		}
		return fb, func() {}, nil
	}
}

// ConnectMySQL opens the database with retries and migrates the state table
func ConnectMySQL(cfg *config.Config) (*gorm.DB, error) {
	gormLogger := logger.Default.LogMode(logger.Silent)
	if cfg.AppEnv == "development" {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	var (
		db      *gorm.DB
		lastErr error
	)
	for attempt := 1; attempt <= 5; attempt++ {
		db, lastErr = gorm.Open(mysql.Open(cfg.GetDSN()), &gorm.Config{Logger: gormLogger})
		if lastErr == nil {
			break
		}
		logrus.WithError(lastErr).WithField("attempt", attempt).Warn("Database connect attempt failed")
		time.Sleep(time.Duration(attempt*attempt) * 300 * time.Millisecond)
	}
	if lastErr != nil {
		return nil, fmt.Errorf("failed to connect to database after retries: %w", lastErr)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetConnMaxLifetime(55 * time.Minute)

	if err := db.AutoMigrate(&models.StateRecord{}); err != nil {
		return nil, fmt.Errorf("auto migration failed: %w", err)
	}

	logrus.Info("Database connected successfully")
	return db, nil
}

// ConnectRedis opens and pings the redis client
func ConnectRedis(cfg *config.Config) (*redis.Client, error) {
	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logrus.Info("Redis connected successfully")
	return rc, nil
}

// Close closes the database connection
func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Error("Error getting database instance")
		return
	}
	if err := sqlDB.Close(); err != nil {
		logrus.WithError(err).Error("Error closing database connection")
		return
	}
	logrus.Info("Database connection closed")
}
