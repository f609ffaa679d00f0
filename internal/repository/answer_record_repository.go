package repository

import (
	"errors"
	"exam_online_backend/internal/model"

	"gorm.io/gorm"
)

type AnswerRecordRepository struct {
	DB *gorm.DB
}

func NewAnswerRecordRepository(db *gorm.DB) *AnswerRecordRepository {
	return &AnswerRecordRepository{DB: db}
}

func (r *AnswerRecordRepository) FindByParticipantAndQuestion(participantID, questionID uint) (*model.AnswerRecord, error) {
	var rec model.AnswerRecord
	err := r.DB.Where("participant_id = ? AND question_id = ?", participantID, questionID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *AnswerRecordRepository) Create(rec *model.AnswerRecord) error {
	return r.DB.Create(rec).Error
}

func (r *AnswerRecordRepository) Update(rec *model.AnswerRecord) error {
	return r.DB.Save(rec).Error
}
