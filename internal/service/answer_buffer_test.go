package service

import (
	"testing"
	"time"

	"exam_online_backend/pkg/monitoring"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWindow = 40 * time.Millisecond

func newTestBuffer(sink FlushSink) *AnswerBufferService {
	return NewAnswerBufferService(sink, testWindow, monitoring.NewMetrics())
}

func TestBuffer_LastWriteWinsWithinWindow(t *testing.T) {
	sink := &recordingSink{}
	buf := newTestBuffer(sink)
	defer buf.Stop()

	buf.Buffer(1, 2, 3, "A")
	buf.Buffer(1, 2, 3, "B")

	time.Sleep(2 * testWindow)

	calls := sink.snapshot()
	require.Len(t, calls, 1, "exactly one flush per quiet period")
	assert.Equal(t, "B", calls[0].answer)
	assert.Equal(t, 3, calls[0].sortOrder)
	assert.Equal(t, 0, buf.Pending())
}

func TestBuffer_WindowResetsOnEveryWrite(t *testing.T) {
	sink := &recordingSink{}
	buf := newTestBuffer(sink)
	defer buf.Stop()

	// 每次写入都重置窗口：写入间隔小于窗口时不应有任何刷出
	for i := 0; i < 4; i++ {
		buf.Buffer(1, 2, 3, "v")
		time.Sleep(testWindow / 2)
	}
	assert.Empty(t, sink.snapshot(), "no flush while writes keep arriving")

	time.Sleep(2 * testWindow)
	assert.Len(t, sink.snapshot(), 1)
}

func TestBuffer_OrdinalsFlushIndependently(t *testing.T) {
	sink := &recordingSink{}
	buf := newTestBuffer(sink)
	defer buf.Stop()

	buf.Buffer(1, 2, 1, "one")
	buf.Buffer(1, 2, 2, "two")

	time.Sleep(2 * testWindow)

	calls := sink.snapshot()
	require.Len(t, calls, 2)
	got := map[int]string{}
	for _, call := range calls {
		got[call.sortOrder] = call.answer
	}
	assert.Equal(t, map[int]string{1: "one", 2: "two"}, got)
}

func TestBuffer_FlushAllClaimsEverythingOnce(t *testing.T) {
	sink := &recordingSink{}
	buf := newTestBuffer(sink)
	defer buf.Stop()

	buf.Buffer(1, 2, 1, "one")
	buf.Buffer(1, 2, 2, "two")
	buf.FlushAll(1, 2)

	require.Len(t, sink.snapshot(), 2)
	assert.Equal(t, 0, buf.Pending())

	// 等过原定的延迟窗口，被认领过的entry不得再次刷出
	time.Sleep(2 * testWindow)
	assert.Len(t, sink.snapshot(), 2, "claimed entries must not double-flush")
}

func TestBuffer_FlushAllOnlyTouchesMatchingSession(t *testing.T) {
	sink := &recordingSink{}
	buf := newTestBuffer(sink)
	defer buf.Stop()

	buf.Buffer(1, 2, 1, "mine")
	buf.Buffer(1, 9, 1, "other student")
	buf.Buffer(5, 2, 1, "other exam")

	buf.FlushAll(1, 2)

	calls := sink.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "mine", calls[0].answer)
	assert.Equal(t, 2, buf.Pending())
}

func TestBuffer_FlushOneAfterClaimIsNoop(t *testing.T) {
	sink := &recordingSink{}
	buf := newTestBuffer(sink)
	defer buf.Stop()

	buf.Buffer(1, 2, 3, "A")
	buf.FlushAll(1, 2)
	require.Len(t, sink.snapshot(), 1)

	require.NoError(t, buf.FlushOne("1:2:3"))
	assert.Len(t, sink.snapshot(), 1)
}

func TestBuffer_SinkFailureRetainsEntryForRetry(t *testing.T) {
	sink := &recordingSink{}
	sink.setFail(true)
	buf := newTestBuffer(sink)
	defer buf.Stop()

	buf.Buffer(1, 2, 3, "A")
	// 睡到重试周期的中点，避开定时器触发瞬间的认领窗口
	time.Sleep(2*testWindow + testWindow/2)

	assert.Empty(t, sink.snapshot())
	assert.Equal(t, 1, buf.Pending(), "failed flush keeps the entry buffered")

	sink.setFail(false)
	time.Sleep(2 * testWindow)

	calls := sink.snapshot()
	require.Len(t, calls, 1, "entry retried on the next scheduled attempt")
	assert.Equal(t, "A", calls[0].answer)
	assert.Equal(t, 0, buf.Pending())
}

func TestBuffer_NewValueSupersedesFailedFlush(t *testing.T) {
	sink := &recordingSink{}
	sink.setFail(true)
	buf := newTestBuffer(sink)
	defer buf.Stop()

	buf.Buffer(1, 2, 3, "old")
	time.Sleep(2*testWindow + testWindow/2)
	require.Equal(t, 1, buf.Pending())

	sink.setFail(false)
	buf.Buffer(1, 2, 3, "new")
	time.Sleep(2 * testWindow)

	calls := sink.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "new", calls[0].answer, "superseded value must be discarded")
}

func TestBuffer_StopCancelsPendingTimers(t *testing.T) {
	sink := &recordingSink{}
	buf := newTestBuffer(sink)

	buf.Buffer(1, 2, 3, "A")
	buf.Stop()

	time.Sleep(2 * testWindow)
	assert.Empty(t, sink.snapshot())
}
