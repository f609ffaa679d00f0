package util

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUserNotFound        = errors.New("用户不存在")
	ErrNotStudent          = errors.New("只有学生可以进入考试")
	ErrExamNotFound        = errors.New("考试不存在或已被删除")
	ErrExamNotStarted      = errors.New("考试尚未开始")
	ErrExamEnded           = errors.New("考试已结束")
	ErrDuplicateEntry      = errors.New("您已进入考试，不允许重复进入")
	ErrEntryInFlight       = errors.New("进入考试处理中，请稍后重试")
	ErrSubmissionInFlight  = errors.New("提交中，请勿重复提交")
	ErrParticipantNotFound = errors.New("未找到考试参与记录")
)

// RateLimitError 限流拒绝，携带建议的重试间隔
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("请求过于频繁，请%d秒后重试", int(e.RetryAfter.Seconds()))
}
