package database

import (
	"fmt"
	"learnmate_backend/internal/config"
	"learnmate_backend/internal/model"
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})

	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")

	err = db.AutoMigrate(
		&model.QuizResult{},
		&model.UserStats{},
		&model.Badge{},
		&model.UserBadge{},
	)

	if err != nil {
		return nil, err
	}

	log.Println("Database migration completed")

	// 默认徽章（如果为空则插入内置徽章定义）
	var badgeCount int64
	db.Model(&model.Badge{}).Count(&badgeCount)
	if badgeCount == 0 {
		for _, b := range model.DefaultBadges() {
			db.Create(&b)
		}
	}

	return db, nil
}
