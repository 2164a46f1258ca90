package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/srg/podwatch/airpods"
)

var (
	headlineColor = color.New(color.FgCyan, color.Bold)
	goodColor     = color.New(color.FgGreen)
	warnColor     = color.New(color.FgYellow)
	mutedColor    = color.New(color.Faint)
)

// consoleObserver renders state changes as status lines. It satisfies the
// observer contract by marshalling every notification onto its own
// goroutine, so calls from the manager never block on terminal I/O.
type consoleObserver struct {
	out io.Writer

	mu     sync.Mutex
	queue  chan func()
	closed bool
	done   chan struct{}
}

func newConsoleObserver(out io.Writer) *consoleObserver {
	o := &consoleObserver{
		out:   out,
		queue: make(chan func(), 64),
		done:  make(chan struct{}),
	}
	go o.loop()
	return o
}

func (o *consoleObserver) loop() {
	defer close(o.done)
	for fn := range o.queue {
		fn()
	}
}

// Close drains pending notifications and stops the render goroutine.
func (o *consoleObserver) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.queue)
	o.mu.Unlock()
	<-o.done
}

func (o *consoleObserver) post(fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	select {
	case o.queue <- fn:
	default:
		// A stalled terminal must not back up into the manager.
	}
}

func (o *consoleObserver) UpdateState(s airpods.State) {
	o.post(func() {
		headlineColor.Fprintf(o.out, "%s", s.DisplayName)
		fmt.Fprintf(o.out, "  L %s%s  R %s%s  Case %s%s",
			s.Pods.Left.Battery, chargeMark(s.Pods.Left.IsCharging),
			s.Pods.Right.Battery, chargeMark(s.Pods.Right.IsCharging),
			s.CaseBox.Battery, chargeMark(s.CaseBox.IsCharging))
		if s.Pods.Left.IsInEar && s.Pods.Right.IsInEar {
			goodColor.Fprint(o.out, "  [in ear]")
		}
		if s.CaseBox.IsLidOpened {
			fmt.Fprint(o.out, "  [lid open]")
		}
		fmt.Fprintln(o.out)
	})
}

func (o *consoleObserver) Show() {
	o.post(func() { goodColor.Fprintln(o.out, "-- lid opened --") })
}

func (o *consoleObserver) Hide() {
	o.post(func() { mutedColor.Fprintln(o.out, "-- lid closed --") })
}

func (o *consoleObserver) Available() {
	o.post(func() { goodColor.Fprintln(o.out, "watcher available") })
}

func (o *consoleObserver) Unavailable() {
	o.post(func() { warnColor.Fprintln(o.out, "watcher unavailable") })
}

func (o *consoleObserver) Disconnected() {
	o.post(func() { warnColor.Fprintln(o.out, "device lost") })
}

func chargeMark(charging bool) string {
	if charging {
		return "+"
	}
	return ""
}

// consoleMedia prints the transport signals a media backend would receive.
type consoleMedia struct {
	out *consoleObserver
}

func (m consoleMedia) Play() {
	m.out.post(func() { goodColor.Fprintln(m.out.out, "media: play") })
}

func (m consoleMedia) Pause() {
	m.out.post(func() { mutedColor.Fprintln(m.out.out, "media: pause") })
}
