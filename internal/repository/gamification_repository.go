package repository

import (
	"errors"
	"learnmate_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type GamificationRepository struct {
	DB *gorm.DB
}

func NewGamificationRepository(db *gorm.DB) *GamificationRepository {
	return &GamificationRepository{DB: db}
}

// GetOrCreateUserStats 查询用户统计，不存在时初始化一条
func (r *GamificationRepository) GetOrCreateUserStats(userID uint) (*model.UserStats, error) {
	var stats model.UserStats
	err := r.DB.Where("user_id = ?", userID).First(&stats).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		stats = model.UserStats{
			UserID:           userID,
			Level:            1,
			ExperienceToNext: 100,
			LastActivity:     time.Now(),
		}
		if err := r.DB.Create(&stats).Error; err != nil {
			return nil, err
		}
		return &stats, nil
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *GamificationRepository) SaveUserStats(stats *model.UserStats) error {
	return r.DB.Save(stats).Error
}

func (r *GamificationRepository) ListBadges() ([]model.Badge, error) {
	var badges []model.Badge
	err := r.DB.Find(&badges).Error
	return badges, err
}

func (r *GamificationRepository) ListUserBadges(userID uint) ([]model.UserBadge, error) {
	var userBadges []model.UserBadge
	err := r.DB.Where("user_id = ?", userID).Order("earned_at DESC").Find(&userBadges).Error
	return userBadges, err
}

func (r *GamificationRepository) HasBadge(userID uint, badgeID string) (bool, error) {
	var count int64
	err := r.DB.Model(&model.UserBadge{}).
		Where("user_id = ? AND badge_id = ?", userID, badgeID).
		Count(&count).Error
	return count > 0, err
}

// AwardBadge 幂等授予徽章；已持有时返回 false
func (r *GamificationRepository) AwardBadge(userID uint, badgeID string) (bool, error) {
	has, err := r.HasBadge(userID, badgeID)
	if err != nil {
		return false, err
	}
	if has {
		return false, nil
	}

	userBadge := model.UserBadge{
		UserID:   userID,
		BadgeID:  badgeID,
		EarnedAt: time.Now(),
	}
	err = r.DB.Create(&userBadge).Error
	if err != nil {
		// 并发授予时撞唯一索引也视为已持有
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *GamificationRepository) CountUserBadges(userID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.UserBadge{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// TopByPoints 积分榜前 N 名
func (r *GamificationRepository) TopByPoints(limit int) ([]model.UserStats, error) {
	var stats []model.UserStats
	err := r.DB.Order("total_points DESC").Limit(limit).Find(&stats).Error
	return stats, err
}
