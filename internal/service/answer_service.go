package service

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"exam_online_backend/internal/model"
	"exam_online_backend/internal/util"
	"exam_online_backend/pkg/logger"
	"exam_online_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// QuestionReader 考试题目关联的只读查询
type QuestionReader interface {
	FindBySortOrder(examID uint, sortOrder int) (*model.ExamQuestion, error)
}

// AnswerService 答题持久化下游：Redis快照写入 + 消息通道发布。
// 消息至少一次投递，消费端按 (participantId, questionId) 幂等落库。
type AnswerService struct {
	store     Store
	questions QuestionReader
	channel   string
	redisTTL  time.Duration
	metrics   *monitoring.Metrics
}

func NewAnswerService(store Store, questions QuestionReader, channel string, redisTTL time.Duration, metrics *monitoring.Metrics) *AnswerService {
	return &AnswerService{
		store:     store,
		questions: questions,
		channel:   channel,
		redisTTL:  redisTTL,
		metrics:   metrics,
	}
}

// SaveAnswer 把最新答案写入Redis快照并发布落库消息。
// Redis写入失败向上返回（缓冲层会重试）；发布失败只记录告警，
// 本地已按至多一次出账，补救依赖下游的重放机制。
func (s *AnswerService) SaveAnswer(ctx context.Context, examID, studentID uint, sortOrder int, answer string) error {
	answerKey := util.AnswerKey(examID, studentID, sortOrder)
	if err := s.store.Set(ctx, answerKey, answer, s.redisTTL); err != nil {
		return err
	}

	examQuestion, err := s.questions.FindBySortOrder(examID, sortOrder)
	if err != nil {
		logger.Log.Warn("未找到题目",
			zap.Uint("examId", examID),
			zap.Int("sortOrder", sortOrder),
			zap.Error(err))
		return nil
	}

	message := model.AnswerMessage{
		ExamID:     examID,
		StudentID:  studentID,
		SortOrder:  sortOrder,
		QuestionID: examQuestion.QuestionID,
		Answer:     answer,
		Timestamp:  time.Now(),
	}

	payload, err := json.Marshal(message)
	if err != nil {
		s.metrics.AnswerPublishTotal.WithLabelValues("error").Inc()
		logger.Log.Error("序列化答题消息失败", zap.Error(err))
		return nil
	}

	if err := s.store.Publish(ctx, s.channel, payload); err != nil {
		s.metrics.AnswerPublishTotal.WithLabelValues("error").Inc()
		logger.Log.Error("发送答题记录到消息通道失败",
			zap.Uint("examId", examID),
			zap.Uint("studentId", studentID),
			zap.Int("sortOrder", sortOrder),
			zap.Error(err))
		return nil
	}

	s.metrics.AnswerPublishTotal.WithLabelValues("ok").Inc()
	logger.Log.Debug("答题记录已发送到消息通道",
		zap.Uint("examId", examID),
		zap.Uint("studentId", studentID),
		zap.Int("sortOrder", sortOrder))
	return nil
}

// GetAllAnswers 从Redis按模式枚举某场考试某个学生的全部答题快照，
// 返回 题目序号 -> 答案。
func (s *AnswerService) GetAllAnswers(ctx context.Context, examID, studentID uint) (map[int]string, error) {
	pattern := util.AnswerPattern(examID, studentID)
	keys, err := s.store.Keys(ctx, pattern)
	if err != nil {
		return nil, err
	}

	answers := make(map[int]string, len(keys))
	for _, key := range keys {
		parts := strings.Split(key, ":")
		if len(parts) < 4 {
			continue
		}
		sortOrder, err := strconv.Atoi(parts[3])
		if err != nil {
			logger.Log.Warn("解析题目序号失败", zap.String("key", key))
			continue
		}
		val, exists, err := s.store.Get(ctx, key)
		if err != nil || !exists {
			continue
		}
		answers[sortOrder] = val
	}
	return answers, nil
}
