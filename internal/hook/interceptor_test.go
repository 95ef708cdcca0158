package hook

import (
	"errors"
	"io"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/char5742/wheel-filter/internal/event"
	"github.com/char5742/wheel-filter/internal/scroll"
)

var start = time.Unix(1_700_000_000, 0)

type sliceSource struct {
	events []event.Event
	err    error
}

func (s *sliceSource) ReadEvent() (event.Event, error) {
	if len(s.events) == 0 {
		if s.err != nil {
			return event.Event{}, s.err
		}
		return event.Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

type recordingSink struct {
	writes [][]event.Event
}

func (s *recordingSink) WriteEvents(events []event.Event) error {
	s.writes = append(s.writes, append([]event.Event(nil), events...))
	return nil
}

type decision struct {
	t      time.Time
	dx, dy float32
}

type fakeDecider struct {
	verdict bool
	calls   []decision
}

func (d *fakeDecider) Decide(t time.Time, dx, dy float32) bool {
	d.calls = append(d.calls, decision{t, dx, dy})
	return d.verdict
}

func at(ms int) syscall.Timeval {
	return syscall.NsecToTimeval(start.Add(time.Duration(ms) * time.Millisecond).UnixNano())
}

func rel(ms int, code uint16, value int32) event.Event {
	return event.Event{Time: at(ms), Type: event.Rel, Code: code, Value: value}
}

func report(ms int) event.Event {
	return event.Event{Time: at(ms), Type: event.Syn, Code: event.SynReport}
}

func closedStop() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func TestInterceptor_ForwardsNonWheelUntouched(t *testing.T) {
	src := &sliceSource{events: []event.Event{rel(0, event.RelX, 3), rel(0, event.RelY, -1), report(0)}}
	sink := &recordingSink{}
	dec := &fakeDecider{}

	err := NewInterceptor(src, sink, dec).Run(closedStop())
	require.NoError(t, err)

	assert.Empty(t, dec.calls)
	require.Len(t, sink.writes, 1)
	assert.Equal(t, []event.Event{rel(0, event.RelX, 3), rel(0, event.RelY, -1), report(0)}, sink.writes[0])
}

func TestInterceptor_SuppressesWheelButKeepsMotion(t *testing.T) {
	src := &sliceSource{events: []event.Event{
		rel(5, event.RelX, 2),
		rel(5, event.RelWheel, 1),
		rel(5, event.RelWheelHiRes, 120),
		report(5),
		rel(10, event.RelWheelHiRes, 1),
		report(10),
	}}
	sink := &recordingSink{}
	dec := &fakeDecider{verdict: false}

	in := NewInterceptor(src, sink, dec)
	require.NoError(t, in.Run(closedStop()))

	require.Len(t, dec.calls, 2)
	assert.Equal(t, decision{start.Add(5 * time.Millisecond), 0, 1}, dec.calls[0])
	assert.Equal(t, float32(1.0/120), dec.calls[1].dy)

	require.Len(t, sink.writes, 1)
	assert.Equal(t, []event.Event{rel(5, event.RelX, 2), report(5)}, sink.writes[0])
	assert.Equal(t, Stats{Frames: 2, WheelFrames: 2, Suppressed: 2}, in.Stats())
}

func TestInterceptor_ForwardsWholeWheelFrame(t *testing.T) {
	frame := []event.Event{rel(0, event.RelHWheelHiRes, -30), report(0)}
	src := &sliceSource{events: frame}
	sink := &recordingSink{}
	dec := &fakeDecider{verdict: true}

	require.NoError(t, NewInterceptor(src, sink, dec).Run(closedStop()))

	assert.Equal(t, [][]event.Event{frame}, sink.writes)
	assert.Equal(t, float32(-0.25), dec.calls[0].dx)
}

func TestInterceptor_DiscardsUntilReportAfterSynDropped(t *testing.T) {
	src := &sliceSource{events: []event.Event{
		rel(0, event.RelX, 1),
		{Time: at(0), Type: event.Syn, Code: event.SynDropped},
		rel(1, event.RelWheel, 1),
		report(1),
		rel(2, event.RelY, 4),
		report(2),
	}}
	sink := &recordingSink{}
	dec := &fakeDecider{verdict: true}

	in := NewInterceptor(src, sink, dec)
	require.NoError(t, in.Run(closedStop()))

	assert.Empty(t, dec.calls)
	assert.Equal(t, [][]event.Event{{rel(2, event.RelY, 4), report(2)}}, sink.writes)
	assert.Equal(t, uint64(1), in.Stats().Dropped)
}

func TestInterceptor_ReadErrorWithoutStop(t *testing.T) {
	boom := errors.New("device gone")
	src := &sliceSource{err: boom}

	err := NewInterceptor(src, &recordingSink{}, &fakeDecider{}).Run(make(chan struct{}))
	assert.ErrorIs(t, err, boom)
}

func TestInterceptor_SetDecider(t *testing.T) {
	src := &sliceSource{events: []event.Event{rel(0, event.RelWheel, 1), report(0)}}
	first, second := &fakeDecider{}, &fakeDecider{verdict: true}

	in := NewInterceptor(src, &recordingSink{}, first)
	in.SetDecider(second)
	require.NoError(t, in.Run(closedStop()))

	assert.Empty(t, first.calls)
	assert.Len(t, second.calls, 1)
}

func TestInterceptor_WithScrollFilter(t *testing.T) {
	// 小さなティックの連続のあとに逆方向の1ティック
	var events []event.Event
	for i := 0; i < 2; i++ {
		events = append(events, rel(i*50, event.RelWheelHiRes, 1), report(i*50))
	}
	events = append(events, rel(100, event.RelWheelHiRes, -1), report(100))

	f, err := scroll.New(scroll.DefaultConfig())
	require.NoError(t, err)
	sink := &recordingSink{}

	in := NewInterceptor(&sliceSource{events: events}, sink, f)
	require.NoError(t, in.Run(closedStop()))

	assert.Equal(t, [][]event.Event{{rel(100, event.RelWheelHiRes, -1), report(100)}}, sink.writes)
	assert.Equal(t, scroll.Stats{Forwarded: 1, Suppressed: 2, Reversals: 1}, f.Stats())
}
