// Package interrupt runs registered shutdown handlers, newest first, when
// the process receives SIGINT or SIGTERM or when Request is called. A second
// signal after the handlers have run kills the process as usual.
package interrupt

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/Hubmakerlabs/postr/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

type handlerWithSource struct {
	source string
	fn     func()
}

var (
	mx        sync.Mutex
	handlers  []handlerWithSource
	listening bool
	requested atomic.Bool

	// signals is the list of signals that cause the interrupt
	signals = []os.Signal{os.Interrupt, syscall.SIGTERM}

	ch       = make(chan os.Signal, 1)
	request  = make(chan struct{})
	reqOnce  sync.Once
	done     = make(chan struct{})
	doneOnce sync.Once
)

func listener() {
	select {
	case sig := <-ch:
		log.D.Ln("received interrupt signal", sig)
	case <-request:
		log.D.Ln("received shutdown request")
	}
	requested.Store(true)
	signal.Stop(ch)
	mx.Lock()
	hh := append([]handlerWithSource(nil), handlers...)
	mx.Unlock()
	for i := len(hh) - 1; i >= 0; i-- {
		log.T.Ln("running interrupt handler", i, hh[i].source)
		hh[i].fn()
	}
	log.D.Ln("interrupt handlers finished")
	doneOnce.Do(func() { close(done) })
}

// AddHandler registers fn to run on interrupt. Handlers run in the reverse
// order they were added. Adding a handler after the interrupt has happened
// runs it at once.
func AddHandler(fn func()) {
	_, loc, line, _ := runtime.Caller(1)
	h := handlerWithSource{fmt.Sprintf("%s:%d", loc, line), fn}
	mx.Lock()
	if !listening {
		listening = true
		signal.Notify(ch, signals...)
		go listener()
	}
	handlers = append(handlers, h)
	mx.Unlock()
	select {
	case <-done:
		fn()
	default:
	}
	log.T.Ln("interrupt handler added by", h.source)
}

// Request starts the shutdown as if a signal had been received.
func Request() {
	mx.Lock()
	if !listening {
		listening = true
		go listener()
	}
	mx.Unlock()
	reqOnce.Do(func() { close(request) })
}

// Requested returns true once an interrupt has been received or requested.
func Requested() bool { return requested.Load() }

// Done is closed after every handler has run.
func Done() <-chan struct{} { return done }

// GoroutineDump returns the stacks of every goroutine, for finding what is
// holding up a shutdown.
func GoroutineDump() string {
	buf := make([]byte, 1<<18)
	n := runtime.Stack(buf, true)
	return string(buf[:n])
}
