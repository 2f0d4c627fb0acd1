package repository

import (
	"learnmate_backend/internal/model"

	"gorm.io/gorm"
)

type QuizResultRepository struct {
	DB *gorm.DB
}

func NewQuizResultRepository(db *gorm.DB) *QuizResultRepository {
	return &QuizResultRepository{DB: db}
}

func (r *QuizResultRepository) Create(result *model.QuizResult) error {
	return r.DB.Create(result).Error
}

func (r *QuizResultRepository) FindByUser(userID uint, page, limit int) ([]model.QuizResult, int64, error) {
	var results []model.QuizResult
	var total int64

	err := r.DB.Model(&model.QuizResult{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = r.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&results).Error
	if err != nil {
		return nil, 0, err
	}

	return results, total, nil
}

func (r *QuizResultRepository) FindBySessionID(sessionID string) (*model.QuizResult, error) {
	var result model.QuizResult
	err := r.DB.Where("session_id = ?", sessionID).First(&result).Error
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// CountByScope 某用户在某范围内已完成的测验数
func (r *QuizResultRepository) CountByScope(userID uint, scopeKey string) (int64, error) {
	var count int64
	err := r.DB.Model(&model.QuizResult{}).
		Where("user_id = ? AND scope_key = ?", userID, scopeKey).
		Count(&count).Error
	return count, err
}
