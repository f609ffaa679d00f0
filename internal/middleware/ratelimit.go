package middleware

import (
	"errors"

	"exam_online_backend/internal/service"
	"exam_online_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// 接口类型，作为限流规则的索引
const (
	OpEnterExam  = "enter-exam"
	OpSaveAnswer = "save-answer"
	OpSubmitExam = "submit-exam"
)

// UserRateLimit 用户级别限流中间件。用户标识取自认证后的claims，
// 而不是扫描请求参数。必须挂在AuthMiddleware之后。
func UserRateLimit(limiter *service.RateLimitService, operationType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := util.GetUserFromContext(c)
		if claims == nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		if err := limiter.Check(c.Request.Context(), claims.UserID, operationType); err != nil {
			var rle *util.RateLimitError
			if errors.As(err, &rle) {
				util.TooManyRequests(c, err.Error(), int(rle.RetryAfter.Seconds()))
				c.Abort()
				return
			}
			util.LogInternalError(c, err)
			c.Abort()
			return
		}

		c.Next()
	}
}
