package model

import "time"

// AnswerMessage 答题落库消息，经消息通道投递给消费端，至少一次投递。
type AnswerMessage struct {
	ExamID     uint      `json:"examId"`
	StudentID  uint      `json:"studentId"`
	SortOrder  int       `json:"sortOrder"`
	QuestionID uint      `json:"questionId"`
	Answer     string    `json:"answer"`
	Timestamp  time.Time `json:"timestamp"`
}
