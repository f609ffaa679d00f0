package model

import "time"

type ExamStatus int

const (
	ExamDraft     ExamStatus = 0
	ExamPublished ExamStatus = 1
	ExamClosed    ExamStatus = 2
)

type Exam struct {
	BaseModel
	Title       string     `gorm:"size:200;not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	StartTime   *time.Time `json:"startTime"`
	EndTime     *time.Time `json:"endTime"`
	Duration    int        `gorm:"default:0" json:"duration"` // 分钟
	Status      ExamStatus `gorm:"default:0" json:"status"`
	CreatorID   uint       `gorm:"index" json:"creatorId"`
}

func (Exam) TableName() string {
	return "exams"
}
