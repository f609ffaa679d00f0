package model

// AnswerRecord 持久化的答题记录，按 (participantId, questionId) 唯一。
// ChangeTimes 记录该题被改写的次数，由消费端每次落库时递增。
type AnswerRecord struct {
	BaseModel
	ParticipantID uint   `gorm:"uniqueIndex:idx_participant_question;not null" json:"participantId"`
	ExamID        uint   `gorm:"index;not null" json:"examId"`
	QuestionID    uint   `gorm:"uniqueIndex:idx_participant_question;not null" json:"questionId"`
	UserAnswer    string `gorm:"type:text" json:"userAnswer"`
	ChangeTimes   int    `gorm:"default:0" json:"changeTimes"`
	QuestionScore int    `gorm:"default:0" json:"questionScore"`
}

func (AnswerRecord) TableName() string {
	return "answer_records"
}
