package dao

import (
	"context"
	"fmt"
	"time"

	"github.com/Malowking/ragkb/core/config"
	"github.com/Malowking/ragkb/core/errors"
	"github.com/gogf/gf/v2/frame/g"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// buildDSN 构建数据库连接字符串
func buildDSN(dbType string, conf *config.SQLConfig) (string, error) {
	switch dbType {
	case "mysql":
		charset := conf.Charset
		if charset == "" {
			charset = "utf8mb4"
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=%s&parseTime=True&loc=Local",
			conf.User, conf.Pass, conf.Host, conf.Port, conf.Name, charset), nil
	case "postgresql", "postgres":
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=Asia/Shanghai",
			conf.Host, conf.User, conf.Pass, conf.Name, conf.Port), nil
	default:
		return "", errors.Newf(errors.ErrConfigInvalid, "unsupported database type: %s", dbType)
	}
}

// OpenDB 根据类型打开 GORM 连接并设置连接池
func OpenDB(ctx context.Context, dbType string, conf *config.SQLConfig) (*gorm.DB, error) {
	if conf == nil {
		return nil, errors.New(errors.ErrInvalidParameter, "database config cannot be nil")
	}

	dsn, err := buildDSN(dbType, conf)
	if err != nil {
		return nil, err
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	var db *gorm.DB
	switch dbType {
	case "mysql":
		db, err = gorm.Open(mysql.Open(dsn), gormConfig)
	default:
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	}
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDatabaseInit, err, "failed to connect %s database", dbType)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabaseInit, err, "failed to get database instance")
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	g.Log().Infof(ctx, "Database connected: %s %s:%s/%s", dbType, conf.Host, conf.Port, conf.Name)
	return db, nil
}

// CloseDB 关闭连接池
func CloseDB(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
