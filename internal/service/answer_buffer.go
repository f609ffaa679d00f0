package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"exam_online_backend/pkg/logger"
	"exam_online_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// FlushSink 缓冲刷出的下游：持久化存储写入 + 消息发布
type FlushSink interface {
	SaveAnswer(ctx context.Context, examID, studentID uint, sortOrder int, answer string) error
}

type bufferedAnswer struct {
	examID    uint
	studentID uint
	sortOrder int
	answer    string
}

// AnswerBufferService 答题合并缓冲。同一题目的连续保存在合并窗口内
// 互相覆盖，窗口静默后只写一次下游；提交时强制刷出全部。
//
// 待刷map和定时器map在同一把锁下维护，任一路径（定时刷出或强制刷出）
// 摘除entry即视为认领，另一路径拿不到entry就什么都不做，保证同一个
// 缓冲值至多被刷出一次。
type AnswerBufferService struct {
	mu     sync.Mutex
	buffer map[string]*bufferedAnswer
	timers map[string]*time.Timer

	window  time.Duration
	sink    FlushSink
	metrics *monitoring.Metrics
}

func NewAnswerBufferService(sink FlushSink, window time.Duration, metrics *monitoring.Metrics) *AnswerBufferService {
	return &AnswerBufferService{
		buffer:  make(map[string]*bufferedAnswer),
		timers:  make(map[string]*time.Timer),
		window:  window,
		sink:    sink,
		metrics: metrics,
	}
}

// Buffer 缓冲一条答题记录，合并窗口静默后自动刷出。
// 同key再次调用会覆盖值并重置窗口。
func (s *AnswerBufferService) Buffer(examID, studentID uint, sortOrder int, answer string) {
	key := bufferKey(examID, studentID, sortOrder)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.buffer[key] = &bufferedAnswer{
		examID:    examID,
		studentID: studentID,
		sortOrder: sortOrder,
		answer:    answer,
	}

	// 取消旧的延迟刷出，重新计时
	if old, ok := s.timers[key]; ok {
		old.Stop()
	}
	s.timers[key] = time.AfterFunc(s.window, func() {
		if err := s.FlushOne(key); err != nil {
			logger.Log.Error("刷新答题记录失败", zap.String("key", key), zap.Error(err))
		}
	})
}

// FlushOne 立即刷出指定key。entry不存在（已被刷出或被提交认领）时
// 是no-op。下游存储写入失败时，若期间没有新值进来，把entry放回去
// 等待下一轮重试。
func (s *AnswerBufferService) FlushOne(key string) error {
	entry := s.claim(key)
	if entry == nil {
		return nil
	}

	if err := s.flush(entry); err != nil {
		s.restore(key, entry)
		return err
	}
	return nil
}

// FlushAll 同步刷出 (examId, studentId) 前缀下的全部缓冲值，并取消
// 对应的延迟任务。提交考试时调用。
func (s *AnswerBufferService) FlushAll(examID, studentID uint) {
	prefix := fmt.Sprintf("%d:%d:", examID, studentID)

	s.mu.Lock()
	claimed := make(map[string]*bufferedAnswer)
	for key, entry := range s.buffer {
		if strings.HasPrefix(key, prefix) {
			claimed[key] = entry
			delete(s.buffer, key)
		}
	}
	for key, timer := range s.timers {
		if strings.HasPrefix(key, prefix) {
			timer.Stop()
			delete(s.timers, key)
		}
	}
	s.mu.Unlock()

	for key, entry := range claimed {
		if err := s.flush(entry); err != nil {
			logger.Log.Error("提交前刷新答题记录失败",
				zap.String("key", key), zap.Error(err))
			s.restore(key, entry)
		}
	}
}

// Pending 当前缓冲中的条目数（诊断用）
func (s *AnswerBufferService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

// Stop 取消所有未触发的延迟刷出
func (s *AnswerBufferService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, timer := range s.timers {
		timer.Stop()
		delete(s.timers, key)
	}
}

// claim 原子摘除entry，摘到即拥有
func (s *AnswerBufferService) claim(key string) *bufferedAnswer {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.buffer[key]
	if !ok {
		return nil
	}
	delete(s.buffer, key)
	if timer, ok := s.timers[key]; ok {
		timer.Stop()
		delete(s.timers, key)
	}
	return entry
}

// restore 刷出失败后放回entry并重新计时；已有新值时丢弃旧值
func (s *AnswerBufferService) restore(key string, entry *bufferedAnswer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.buffer[key]; ok {
		return
	}
	s.buffer[key] = entry
	s.timers[key] = time.AfterFunc(s.window, func() {
		if err := s.FlushOne(key); err != nil {
			logger.Log.Error("刷新答题记录失败", zap.String("key", key), zap.Error(err))
		}
	})
}

func (s *AnswerBufferService) flush(entry *bufferedAnswer) error {
	err := s.sink.SaveAnswer(context.Background(), entry.examID, entry.studentID, entry.sortOrder, entry.answer)
	if err != nil {
		s.metrics.AnswerFlushTotal.WithLabelValues("error").Inc()
		return err
	}
	s.metrics.AnswerFlushTotal.WithLabelValues("ok").Inc()
	return nil
}

func bufferKey(examID, studentID uint, sortOrder int) string {
	return fmt.Sprintf("%d:%d:%d", examID, studentID, sortOrder)
}
