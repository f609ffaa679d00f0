package model

import "time"

type ParticipantStatus int

const (
	ParticipantNotStarted ParticipantStatus = 0
	ParticipantInProgress ParticipantStatus = 1
	ParticipantSubmitted  ParticipantStatus = 2 // 终态，重复提交幂等
)

// ExamParticipant 一次考试参与记录。状态只能单向推进：
// NotStarted -> InProgress -> Submitted
type ExamParticipant struct {
	BaseModel
	ExamID      uint              `gorm:"index:idx_exam_user;not null" json:"examId"`
	UserID      uint              `gorm:"index:idx_exam_user;not null" json:"userId"`
	Attempt     int               `gorm:"default:1" json:"attempt"`
	Status      ParticipantStatus `gorm:"default:0" json:"status"`
	JoinTime    *time.Time        `json:"joinTime"`
	StartTime   *time.Time        `json:"startTime"`
	SubmitTime  *time.Time        `json:"submitTime"`
	AccessToken string            `gorm:"size:64" json:"-"`
}

func (ExamParticipant) TableName() string {
	return "exam_participants"
}
