package repository

import (
	"errors"
	"exam_online_backend/internal/model"

	"gorm.io/gorm"
)

type ParticipantRepository struct {
	DB *gorm.DB
}

func NewParticipantRepository(db *gorm.DB) *ParticipantRepository {
	return &ParticipantRepository{DB: db}
}

// FindLatest 返回 (examId, userId) 最近一条参与记录；历史上可能存在
// 多条记录，以创建时间最新的为准。不存在时返回 (nil, nil)。
func (r *ParticipantRepository) FindLatest(examID, userID uint) (*model.ExamParticipant, error) {
	var p model.ExamParticipant
	err := r.DB.Where("exam_id = ? AND user_id = ?", examID, userID).
		Order("created_at DESC").
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ParticipantRepository) Create(p *model.ExamParticipant) error {
	return r.DB.Create(p).Error
}

func (r *ParticipantRepository) Update(p *model.ExamParticipant) error {
	return r.DB.Save(p).Error
}
