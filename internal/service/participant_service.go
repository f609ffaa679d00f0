package service

import (
	"context"
	"strings"
	"time"

	"exam_online_backend/internal/model"
	"exam_online_backend/internal/util"
	"exam_online_backend/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// 会话token在考试结束时间之外的宽限时长
	sessionTokenGrace = 30 * time.Minute
	// 进入考试锁竞争失败后，等待对端完成再复查的时长
	enterContentionWait = 300 * time.Millisecond
)

// UserReader 用户身份的只读查询
type UserReader interface {
	FindByID(id uint) (*model.SystemUser, error)
}

// ExamReader 考试元数据的只读查询
type ExamReader interface {
	FindByID(id uint) (*model.Exam, error)
}

// ParticipantStore 参与记录的读写
type ParticipantStore interface {
	FindLatest(examID, userID uint) (*model.ExamParticipant, error)
	Create(p *model.ExamParticipant) error
	Update(p *model.ExamParticipant) error
}

// ParticipantService 考试会话状态机。状态单向推进：
// NotStarted -> InProgress -> Submitted（终态，重复提交幂等）。
// 同一 (examId, studentId) 的进入和提交经分布式锁串行化。
type ParticipantService struct {
	users        UserReader
	exams        ExamReader
	participants ParticipantStore
	store        Store
	locks        *LockService
	buffer       *AnswerBufferService
	settleDelay  time.Duration
}

func NewParticipantService(
	users UserReader,
	exams ExamReader,
	participants ParticipantStore,
	store Store,
	locks *LockService,
	buffer *AnswerBufferService,
	settleDelay time.Duration,
) *ParticipantService {
	return &ParticipantService{
		users:        users,
		exams:        exams,
		participants: participants,
		store:        store,
		locks:        locks,
		buffer:       buffer,
		settleDelay:  settleDelay,
	}
}

// Enter 学生进入考试。同一 (examId, studentId) 在考试窗口内最多存在
// 一个有效会话token，重复进入被拒绝。校验失败不产生任何状态变更。
func (s *ParticipantService) Enter(ctx context.Context, examID, studentID uint) (*model.ExamParticipant, error) {
	tokenKey := util.SessionTokenKey(examID, studentID)

	// 快路径：token已存在就不必抢锁
	if _, exists, err := s.store.Get(ctx, tokenKey); err == nil && exists {
		return nil, util.ErrDuplicateEntry
	}

	// 锁外身份校验
	user, err := s.users.FindByID(studentID)
	if err != nil || user == nil || user.Disabled {
		return nil, util.ErrUserNotFound
	}
	if user.Role != model.Student {
		return nil, util.ErrNotStudent
	}

	handle, acquired := s.locks.TryLockEnter(ctx, examID, studentID)
	if !acquired {
		// 锁被占说明有并发的进入请求。短暂等待后复查，若对端已完成
		// 就直接复用其结果，尽量做到幂等而不是硬失败。
		return s.enterContendedFallback(ctx, examID, studentID, tokenKey)
	}
	defer s.locks.Unlock(ctx, handle)

	// 快路径检查和加锁之间存在窗口，锁内必须复查
	if _, exists, err := s.store.Get(ctx, tokenKey); err == nil && exists {
		return nil, util.ErrDuplicateEntry
	}

	exam, err := s.exams.FindByID(examID)
	if err != nil || exam == nil {
		return nil, util.ErrExamNotFound
	}

	now := time.Now()
	if exam.StartTime != nil && now.Before(*exam.StartTime) {
		return nil, util.ErrExamNotStarted
	}
	if exam.EndTime != nil && !now.Before(*exam.EndTime) {
		return nil, util.ErrExamEnded
	}

	// token有效期 = 考试剩余时间 + 宽限
	ttl := sessionTokenGrace
	if exam.EndTime != nil {
		if remaining := exam.EndTime.Sub(now); remaining > 0 {
			ttl = remaining + sessionTokenGrace
		}
	}

	token := strings.ReplaceAll(uuid.New().String(), "-", "")
	created, err := s.store.SetNX(ctx, tokenKey, token, ttl)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, util.ErrDuplicateEntry
	}

	participant, err := s.upsertParticipant(examID, studentID, token, now)
	if err != nil {
		// 参与记录没写成，把token收回，让重试有机会成功
		if delErr := s.store.Del(ctx, tokenKey); delErr != nil {
			logger.Log.Error("回收会话token失败",
				zap.String("key", tokenKey), zap.Error(delErr))
		}
		return nil, err
	}

	logger.Log.Info("学生进入考试成功",
		zap.Uint("examId", examID),
		zap.Uint("studentId", studentID),
		zap.Uint("participantId", participant.ID))
	return participant, nil
}

func (s *ParticipantService) enterContendedFallback(ctx context.Context, examID, studentID uint, tokenKey string) (*model.ExamParticipant, error) {
	time.Sleep(enterContentionWait)

	_, exists, err := s.store.Get(ctx, tokenKey)
	if err != nil || !exists {
		return nil, util.ErrEntryInFlight
	}

	participant, err := s.participants.FindLatest(examID, studentID)
	if err == nil && participant != nil && participant.Status == model.ParticipantInProgress {
		logger.Log.Info("进入考试锁竞争，复用并发请求的结果",
			zap.Uint("examId", examID),
			zap.Uint("studentId", studentID))
		return participant, nil
	}
	return nil, util.ErrDuplicateEntry
}

func (s *ParticipantService) upsertParticipant(examID, studentID uint, token string, now time.Time) (*model.ExamParticipant, error) {
	participant, err := s.participants.FindLatest(examID, studentID)
	if err != nil {
		return nil, err
	}

	if participant == nil {
		participant = &model.ExamParticipant{
			ExamID:      examID,
			UserID:      studentID,
			Attempt:     1,
			Status:      model.ParticipantInProgress,
			JoinTime:    &now,
			StartTime:   &now,
			AccessToken: token,
		}
		if err := s.participants.Create(participant); err != nil {
			return nil, err
		}
		return participant, nil
	}

	participant.AccessToken = token
	participant.JoinTime = &now
	participant.StartTime = &now
	participant.Status = model.ParticipantInProgress
	if err := s.participants.Update(participant); err != nil {
		return nil, err
	}
	return participant, nil
}

// Submit 提交考试。锁内先做幂等检查，已提交直接成功；然后强制刷出
// 全部缓冲答案，等待下游发布完成的固定间隔后落终态。
func (s *ParticipantService) Submit(ctx context.Context, examID, studentID uint) error {
	handle, acquired := s.locks.TryLockSubmit(ctx, examID, studentID)
	if !acquired {
		// 有其他提交在进行。若已是终态则按成功返回
		participant, err := s.participants.FindLatest(examID, studentID)
		if err == nil && participant != nil && participant.Status == model.ParticipantSubmitted {
			return nil
		}
		return util.ErrSubmissionInFlight
	}
	defer s.locks.Unlock(ctx, handle)

	participant, err := s.participants.FindLatest(examID, studentID)
	if err != nil {
		return err
	}
	if participant == nil {
		return util.ErrParticipantNotFound
	}
	if participant.Status == model.ParticipantSubmitted {
		logger.Log.Info("考试已提交，幂等返回",
			zap.Uint("examId", examID),
			zap.Uint("studentId", studentID))
		return nil
	}

	s.buffer.FlushAll(examID, studentID)
	logger.Log.Info("已刷新所有缓冲答题记录",
		zap.Uint("examId", examID),
		zap.Uint("studentId", studentID))

	// 给异步发布留出完成时间。这是对下游的弱保证，不是确认机制。
	time.Sleep(s.settleDelay)

	now := time.Now()
	participant.Status = model.ParticipantSubmitted
	participant.SubmitTime = &now
	if err := s.participants.Update(participant); err != nil {
		return err
	}

	logger.Log.Info("考试提交成功",
		zap.Uint("examId", examID),
		zap.Uint("studentId", studentID))
	return nil
}

// GetParticipant 查询最近一条参与记录
func (s *ParticipantService) GetParticipant(examID, studentID uint) (*model.ExamParticipant, error) {
	return s.participants.FindLatest(examID, studentID)
}
