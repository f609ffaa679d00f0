package repository

import (
	"exam_online_backend/internal/model"

	"gorm.io/gorm"
)

type ExamQuestionRepository struct {
	DB *gorm.DB
}

func NewExamQuestionRepository(db *gorm.DB) *ExamQuestionRepository {
	return &ExamQuestionRepository{DB: db}
}

// FindBySortOrder 按考试内题目序号查找题目关联
func (r *ExamQuestionRepository) FindBySortOrder(examID uint, sortOrder int) (*model.ExamQuestion, error) {
	var eq model.ExamQuestion
	err := r.DB.Where("exam_id = ? AND sort_order = ?", examID, sortOrder).
		First(&eq).Error
	if err != nil {
		return nil, err
	}
	return &eq, nil
}

func (r *ExamQuestionRepository) FindByQuestion(examID, questionID uint) (*model.ExamQuestion, error) {
	var eq model.ExamQuestion
	err := r.DB.Where("exam_id = ? AND question_id = ?", examID, questionID).
		First(&eq).Error
	if err != nil {
		return nil, err
	}
	return &eq, nil
}
