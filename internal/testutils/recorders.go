package testutils

import (
	"sync"

	"github.com/srg/podwatch/airpods"
)

// RecordingObserver implements airpods.StatusObserver, capturing every call
// for assertions.
type RecordingObserver struct {
	mu sync.Mutex

	States []airpods.State
	Calls  []string // "show", "hide", "available", "unavailable", "disconnected"
}

func (o *RecordingObserver) UpdateState(s airpods.State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.States = append(o.States, s)
}

func (o *RecordingObserver) Show()         { o.record("show") }
func (o *RecordingObserver) Hide()         { o.record("hide") }
func (o *RecordingObserver) Available()    { o.record("available") }
func (o *RecordingObserver) Unavailable()  { o.record("unavailable") }
func (o *RecordingObserver) Disconnected() { o.record("disconnected") }

func (o *RecordingObserver) record(call string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Calls = append(o.Calls, call)
}

// CallCount returns how many times the named call was recorded.
func (o *RecordingObserver) CallCount(call string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, c := range o.Calls {
		if c == call {
			n++
		}
	}
	return n
}

// LastState returns the most recently observed state.
func (o *RecordingObserver) LastState() (airpods.State, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.States) == 0 {
		return airpods.State{}, false
	}
	return o.States[len(o.States)-1], true
}

// RecordingMedia implements airpods.MediaController, counting the
// play/pause signals.
type RecordingMedia struct {
	mu     sync.Mutex
	Plays  int
	Pauses int
}

func (m *RecordingMedia) Play() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Plays++
}

func (m *RecordingMedia) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Pauses++
}
