package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// key格式与线上数据兼容，逐字节断言
func TestRedisKeyFormats(t *testing.T) {
	assert.Equal(t, "sessiontoken:1:10", SessionTokenKey(1, 10))
	assert.Equal(t, "answer:1:10:3", AnswerKey(1, 10, 3))
	assert.Equal(t, "answer:1:10:*", AnswerPattern(1, 10))
	assert.Equal(t, "lock:enter:1:10", EnterLockKey(1, 10))
	assert.Equal(t, "lock:submit:1:10", SubmitLockKey(1, 10))
	assert.Equal(t, "ratelimit:enter-exam:user:10", RateLimitKey("enter-exam", 10))
}

func TestAnswerPatternMatchesAnswerKey(t *testing.T) {
	pattern := AnswerPattern(7, 42)
	key := AnswerKey(7, 42, 5)
	assert.Equal(t, pattern[:len(pattern)-1], key[:len(pattern)-1])
}
