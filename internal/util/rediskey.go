package util

import "fmt"

// Redis key 命名空间。格式与线上保持兼容，不允许随意更改。
const (
	sessionTokenPrefix = "sessiontoken:"
	answerPrefix       = "answer:"
	lockEnterPrefix    = "lock:enter:"
	lockSubmitPrefix   = "lock:submit:"
	rateLimitPrefix    = "ratelimit:"
)

// SessionTokenKey 考试会话token的key
func SessionTokenKey(examID, studentID uint) string {
	return fmt.Sprintf("%s%d:%d", sessionTokenPrefix, examID, studentID)
}

// AnswerKey 答题记录的key
func AnswerKey(examID, studentID uint, sortOrder int) string {
	return fmt.Sprintf("%s%d:%d:%d", answerPrefix, examID, studentID, sortOrder)
}

// AnswerPattern 某场考试某个学生全部答题记录的匹配模式
func AnswerPattern(examID, studentID uint) string {
	return fmt.Sprintf("%s%d:%d:*", answerPrefix, examID, studentID)
}

// EnterLockKey 进入考试锁的key
func EnterLockKey(examID, studentID uint) string {
	return fmt.Sprintf("%s%d:%d", lockEnterPrefix, examID, studentID)
}

// SubmitLockKey 提交考试锁的key
func SubmitLockKey(examID, studentID uint) string {
	return fmt.Sprintf("%s%d:%d", lockSubmitPrefix, examID, studentID)
}

// RateLimitKey 用户级别限流的key
func RateLimitKey(operationType string, userID uint) string {
	return fmt.Sprintf("%s%s:user:%d", rateLimitPrefix, operationType, userID)
}
