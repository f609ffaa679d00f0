package model

// ExamQuestion 考试与题目的关联，SortOrder为题目在考试中的序号
type ExamQuestion struct {
	BaseModel
	ExamID        uint `gorm:"index:idx_exam_sort;not null" json:"examId"`
	QuestionID    uint `gorm:"index;not null" json:"questionId"`
	SortOrder     int  `gorm:"index:idx_exam_sort;not null" json:"sortOrder"`
	QuestionScore int  `gorm:"default:0" json:"questionScore"`
}

func (ExamQuestion) TableName() string {
	return "exam_questions"
}
