package loggingtest

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chproxy/chproxy/logging"
)

type logSubscription struct {
	exp      string
	n        int
	response chan<- struct{}
}

type logWatch struct {
	entries []string
	reqs    []*logSubscription
}

type TestLogger struct {
	save   chan string
	notify chan<- logSubscription
	clear  chan struct{}
	quit   chan<- struct{}
}

var ErrWaitTimeout = errors.New("timeout")

func (lw *logWatch) save(e string) {
	lw.entries = append(lw.entries, e)
	for i := len(lw.reqs) - 1; i >= 0; i-- {
		req := lw.reqs[i]
		if strings.Contains(e, req.exp) {
			req.n--
			if req.n <= 0 {
				close(req.response)
				lw.reqs = append(lw.reqs[:i], lw.reqs[i+1:]...)
			}
		}
	}
}

func (lw *logWatch) notify(req logSubscription) {
	for i := len(lw.entries) - 1; i >= 0; i-- {
		if strings.Contains(lw.entries[i], req.exp) {
			req.n--
			if req.n == 0 {
				break
			}
		}
	}

	if req.n <= 0 {
		close(req.response)
	} else {
		lw.reqs = append(lw.reqs, &req)
	}
}

func (lw *logWatch) clear() {
	lw.entries = nil
	lw.reqs = nil
}

func New() *TestLogger {
	lw := &logWatch{}
	save := make(chan string)
	notify := make(chan logSubscription)
	clear := make(chan struct{})
	quit := make(chan struct{})

	go func() {
		for {
			select {
			case e := <-save:
				lw.save(e)
			case req := <-notify:
				lw.notify(req)
			case <-clear:
				lw.clear()
			case <-quit:
				return
			}
		}
	}()

	return &TestLogger{save, notify, clear, quit}
}

func (tl *TestLogger) logf(f string, a ...interface{}) {
	log.Printf(f, a...)
	tl.save <- fmt.Sprintf(f, a...)
}

func (tl *TestLogger) log(a ...interface{}) {
	log.Println(a...)
	tl.save <- fmt.Sprint(a...)
}

func (tl *TestLogger) WaitForN(exp string, n int, to time.Duration) error {
	found := make(chan struct{}, 1)
	tl.notify <- logSubscription{exp, n, found}

	select {
	case <-found:
		return nil
	case <-time.After(to):
		return ErrWaitTimeout
	}
}

func (tl *TestLogger) WaitFor(exp string, to time.Duration) error {
	return tl.WaitForN(exp, 1, to)
}

func (tl *TestLogger) Reset() {
	tl.clear <- struct{}{}
}

func (tl *TestLogger) Close() {
	close(tl.quit)
}

func (tl *TestLogger) Error(a ...interface{})            { tl.log(a...) }
func (tl *TestLogger) Errorf(f string, a ...interface{}) { tl.logf(f, a...) }
func (tl *TestLogger) Warn(a ...interface{})             { tl.log(a...) }
func (tl *TestLogger) Warnf(f string, a ...interface{})  { tl.logf(f, a...) }
func (tl *TestLogger) Info(a ...interface{})             { tl.log(a...) }
func (tl *TestLogger) Infof(f string, a ...interface{})  { tl.logf(f, a...) }
func (tl *TestLogger) Debug(a ...interface{})            { tl.log(a...) }
func (tl *TestLogger) Debugf(f string, a ...interface{}) { tl.logf(f, a...) }

// WithFields satisfies logging.Logger; TestLogger has no per-entry
// structure to attach fields to, so it folds them into the message text.
func (tl *TestLogger) WithFields(fields map[string]interface{}) logging.Logger {
	return &fieldLogger{tl: tl, fields: fields}
}

// fieldLogger renders fields inline ahead of the message so
// WaitFor/WaitForN substring matches still work against them.
type fieldLogger struct {
	tl     *TestLogger
	fields map[string]interface{}
}

func (fl *fieldLogger) prefix() string {
	s := ""
	for k, v := range fl.fields {
		s += fmt.Sprintf("%s=%v ", k, v)
	}
	return s
}

func (fl *fieldLogger) Error(a ...interface{})  { fl.tl.log(append([]interface{}{fl.prefix()}, a...)...) }
func (fl *fieldLogger) Warn(a ...interface{})   { fl.tl.log(append([]interface{}{fl.prefix()}, a...)...) }
func (fl *fieldLogger) Info(a ...interface{})   { fl.tl.log(append([]interface{}{fl.prefix()}, a...)...) }
func (fl *fieldLogger) Debug(a ...interface{})  { fl.tl.log(append([]interface{}{fl.prefix()}, a...)...) }
func (fl *fieldLogger) Errorf(f string, a ...interface{}) { fl.tl.logf(fl.prefix()+f, a...) }
func (fl *fieldLogger) Warnf(f string, a ...interface{})  { fl.tl.logf(fl.prefix()+f, a...) }
func (fl *fieldLogger) Infof(f string, a ...interface{})  { fl.tl.logf(fl.prefix()+f, a...) }
func (fl *fieldLogger) Debugf(f string, a ...interface{}) { fl.tl.logf(fl.prefix()+f, a...) }
func (fl *fieldLogger) WithFields(fields map[string]interface{}) logging.Logger {
	merged := make(map[string]interface{}, len(fl.fields)+len(fields))
	for k, v := range fl.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &fieldLogger{tl: fl.tl, fields: merged}
}
