package service

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync"
	"time"

	"exam_online_backend/internal/model"
)

var errStoreDown = errors.New("store unavailable")

type fakeBucket struct {
	tokens     float64
	lastUpdate int64
}

// memStore Store的内存实现，供测试使用。两个已知脚本按其语义仿真。
type memStore struct {
	mu      sync.Mutex
	data    map[string]string
	expires map[string]time.Time
	buckets map[string]*fakeBucket

	published [][]byte
	channels  []string

	setNXSuccess map[string]int

	failAll bool
}

func newMemStore() *memStore {
	return &memStore{
		data:         make(map[string]string),
		expires:      make(map[string]time.Time),
		buckets:      make(map[string]*fakeBucket),
		setNXSuccess: make(map[string]int),
	}
}

func (s *memStore) expired(key string) bool {
	if exp, ok := s.expires[key]; ok && time.Now().After(exp) {
		delete(s.data, key)
		delete(s.expires, key)
		return true
	}
	return false
}

func (s *memStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return "", false, errStoreDown
	}
	if s.expired(key) {
		return "", false, nil
	}
	val, ok := s.data[key]
	return val, ok, nil
}

func (s *memStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errStoreDown
	}
	s.data[key] = value
	if ttl > 0 {
		s.expires[key] = time.Now().Add(ttl)
	}
	return nil
}

func (s *memStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return false, errStoreDown
	}
	if !s.expired(key) {
		if _, ok := s.data[key]; ok {
			return false, nil
		}
	}
	s.data[key] = value
	if ttl > 0 {
		s.expires[key] = time.Now().Add(ttl)
	}
	s.setNXSuccess[key]++
	return true, nil
}

func (s *memStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errStoreDown
	}
	for _, key := range keys {
		delete(s.data, key)
		delete(s.expires, key)
	}
	return nil
}

func (s *memStore) Keys(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return nil, errStoreDown
	}
	// 仅支持 "prefix*" 形式，足够覆盖答题快照的枚举
	prefix := pattern
	if len(pattern) > 0 && pattern[len(pattern)-1] == '*' {
		prefix = pattern[:len(pattern)-1]
	}
	var keys []string
	for key := range s.data {
		if s.expired(key) {
			continue
		}
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *memStore) Eval(_ context.Context, script string, keys []string, args ...interface{}) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return 0, errStoreDown
	}

	switch script {
	case releaseScript:
		key := keys[0]
		token, _ := args[0].(string)
		if !s.expired(key) && s.data[key] == token {
			delete(s.data, key)
			delete(s.expires, key)
			return 1, nil
		}
		return 0, nil

	case tokenBucketScript:
		key := keys[0]
		capacity := float64(toInt64(args[0]))
		refillRate := float64(toInt64(args[1]))
		interval := float64(toInt64(args[2]))
		now := toInt64(args[3])

		bucket, ok := s.buckets[key]
		if !ok {
			bucket = &fakeBucket{tokens: capacity, lastUpdate: now}
			s.buckets[key] = bucket
		} else {
			elapsed := float64(now-bucket.lastUpdate) / 1000.0
			refill := math.Floor(elapsed * refillRate / interval)
			bucket.tokens = math.Min(capacity, math.Max(0, bucket.tokens+refill))
		}

		if bucket.tokens > 0 {
			bucket.tokens--
			bucket.lastUpdate = now
			return 1, nil
		}
		bucket.lastUpdate = now
		return 0, nil
	}

	return 0, errors.New("unknown script")
}

func (s *memStore) Publish(_ context.Context, channel string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errStoreDown
	}
	s.channels = append(s.channels, channel)
	s.published = append(s.published, payload)
	return nil
}

func (s *memStore) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAll = fail
}

func (s *memStore) tokenCreations(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setNXSuccess[key]
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed
	}
	return 0
}

// recordingSink FlushSink的测试替身，记录每次刷出
type recordingSink struct {
	mu    sync.Mutex
	calls []sinkCall
	fail  bool
}

type sinkCall struct {
	examID    uint
	studentID uint
	sortOrder int
	answer    string
}

func (s *recordingSink) SaveAnswer(_ context.Context, examID, studentID uint, sortOrder int, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errStoreDown
	}
	s.calls = append(s.calls, sinkCall{examID: examID, studentID: studentID, sortOrder: sortOrder, answer: answer})
	return nil
}

func (s *recordingSink) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *recordingSink) snapshot() []sinkCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sinkCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// fakeUsers UserReader测试替身
type fakeUsers struct {
	users map[uint]*model.SystemUser
}

func (f *fakeUsers) FindByID(id uint) (*model.SystemUser, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	return user, nil
}

// fakeExams ExamReader测试替身
type fakeExams struct {
	exams map[uint]*model.Exam
}

func (f *fakeExams) FindByID(id uint) (*model.Exam, error) {
	exam, ok := f.exams[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	return exam, nil
}

// fakeParticipants ParticipantStore测试替身
type fakeParticipants struct {
	mu     sync.Mutex
	nextID uint
	rows   []*model.ExamParticipant
}

func (f *fakeParticipants) FindLatest(examID, userID uint) (*model.ExamParticipant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.rows) - 1; i >= 0; i-- {
		if f.rows[i].ExamID == examID && f.rows[i].UserID == userID {
			cp := *f.rows[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeParticipants) Create(p *model.ExamParticipant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	p.ID = f.nextID
	cp := *p
	f.rows = append(f.rows, &cp)
	return nil
}

func (f *fakeParticipants) Update(p *model.ExamParticipant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, row := range f.rows {
		if row.ID == p.ID {
			cp := *p
			f.rows[i] = &cp
			return nil
		}
	}
	return errors.New("record not found")
}

// fakeQuestions QuestionReader + QuestionScoreReader 测试替身
type fakeQuestions struct {
	bySortOrder map[int]*model.ExamQuestion
}

func (f *fakeQuestions) FindBySortOrder(_ uint, sortOrder int) (*model.ExamQuestion, error) {
	eq, ok := f.bySortOrder[sortOrder]
	if !ok {
		return nil, errors.New("record not found")
	}
	return eq, nil
}

func (f *fakeQuestions) FindByQuestion(_ uint, questionID uint) (*model.ExamQuestion, error) {
	for _, eq := range f.bySortOrder {
		if eq.QuestionID == questionID {
			return eq, nil
		}
	}
	return nil, errors.New("record not found")
}

// fakeAnswerRecords AnswerRecordStore测试替身
type fakeAnswerRecords struct {
	mu     sync.Mutex
	nextID uint
	rows   []*model.AnswerRecord
}

func (f *fakeAnswerRecords) FindByParticipantAndQuestion(participantID, questionID uint) (*model.AnswerRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ParticipantID == participantID && row.QuestionID == questionID {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeAnswerRecords) Create(rec *model.AnswerRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	rec.ID = f.nextID
	cp := *rec
	f.rows = append(f.rows, &cp)
	return nil
}

func (f *fakeAnswerRecords) Update(rec *model.AnswerRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, row := range f.rows {
		if row.ID == rec.ID {
			cp := *rec
			f.rows[i] = &cp
			return nil
		}
	}
	return errors.New("record not found")
}
