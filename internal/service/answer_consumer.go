package service

import (
	"context"
	"encoding/json"

	"exam_online_backend/internal/model"
	"exam_online_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ParticipantReader 参与记录的只读查询（重复时取创建时间最新的一条）
type ParticipantReader interface {
	FindLatest(examID, userID uint) (*model.ExamParticipant, error)
}

// AnswerRecordStore 答题记录的读写
type AnswerRecordStore interface {
	FindByParticipantAndQuestion(participantID, questionID uint) (*model.AnswerRecord, error)
	Create(rec *model.AnswerRecord) error
	Update(rec *model.AnswerRecord) error
}

// QuestionScoreReader 题目分值查询
type QuestionScoreReader interface {
	FindByQuestion(examID, questionID uint) (*model.ExamQuestion, error)
}

// AnswerRecordConsumer 订阅答题消息通道，把答案幂等落库：
// 按 (participantId, questionId) 查到则更新并递增改写次数，否则新建。
// 同一条最新值被重复投递时结果不变。
type AnswerRecordConsumer struct {
	rdb          *redis.Client
	participants ParticipantReader
	records      AnswerRecordStore
	questions    QuestionScoreReader
	channel      string

	cancel context.CancelFunc
	done   chan struct{}
}

func NewAnswerRecordConsumer(rdb *redis.Client, participants ParticipantReader, records AnswerRecordStore, questions QuestionScoreReader, channel string) *AnswerRecordConsumer {
	return &AnswerRecordConsumer{
		rdb:          rdb,
		participants: participants,
		records:      records,
		questions:    questions,
		channel:      channel,
		done:         make(chan struct{}),
	}
}

func (c *AnswerRecordConsumer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	pubsub := c.rdb.Subscribe(ctx, c.channel)

	go func() {
		defer close(c.done)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var am model.AnswerMessage
				if err := json.Unmarshal([]byte(msg.Payload), &am); err != nil {
					logger.Log.Error("解析答题消息失败", zap.Error(err))
					continue
				}
				if err := c.HandleMessage(&am); err != nil {
					logger.Log.Error("处理答题记录消息失败",
						zap.Uint("examId", am.ExamID),
						zap.Uint("studentId", am.StudentID),
						zap.Int("sortOrder", am.SortOrder),
						zap.Error(err))
				}
			}
		}
	}()
}

func (c *AnswerRecordConsumer) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
}

// HandleMessage 单条消息的落库逻辑
func (c *AnswerRecordConsumer) HandleMessage(msg *model.AnswerMessage) error {
	participant, err := c.participants.FindLatest(msg.ExamID, msg.StudentID)
	if err != nil {
		return err
	}
	if participant == nil {
		logger.Log.Warn("未找到考试参与记录",
			zap.Uint("examId", msg.ExamID),
			zap.Uint("studentId", msg.StudentID))
		return nil
	}

	record, err := c.records.FindByParticipantAndQuestion(participant.ID, msg.QuestionID)
	if err != nil {
		return err
	}

	questionScore := 0
	if eq, err := c.questions.FindByQuestion(msg.ExamID, msg.QuestionID); err == nil && eq != nil {
		questionScore = eq.QuestionScore
	}

	if record == nil {
		record = &model.AnswerRecord{
			ParticipantID: participant.ID,
			ExamID:        msg.ExamID,
			QuestionID:    msg.QuestionID,
			UserAnswer:    msg.Answer,
			ChangeTimes:   1,
			QuestionScore: questionScore,
		}
		return c.records.Create(record)
	}

	record.UserAnswer = msg.Answer
	record.ChangeTimes++
	return c.records.Update(record)
}
