package logging

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	dateFormat      = "02/Jan/2006:15:04:05 -0700"
	commonLogFormat = `%s - - [%s] "%s %s %s" %d %d`
	// format:
	// remote_host - - [date] "method uri protocol" status response_size "prefix" "target"
	combinedLogFormat = commonLogFormat + ` "%s" "%s"`
	// duration in ms appended at the end
	accessLogFormat = combinedLogFormat + " %d\n"
)

type accessLogFormatter struct {
	format string
}

// AccessEntry is one data-plane request/response pair, whether it was
// dispatched to an upstream or turned away by the error handler.
type AccessEntry struct {

	// The client request.
	Request *http.Request

	// The status code of the response.
	StatusCode int

	// The size of the response in bytes.
	ResponseSize int64

	// The matched route prefix, empty when no route matched.
	Prefix string

	// The upstream target the request was forwarded to, empty when
	// no route matched.
	Target string

	// The time spent processing request.
	Duration time.Duration

	// The time that the request was received.
	RequestTime time.Time
}

var accessLog *logrus.Logger

// strip port from addresses with hostname, ipv4 or ipv6
func stripPort(address string) string {
	if h, _, err := net.SplitHostPort(address); err == nil {
		return h
	}

	return address
}

// The remote address of the client. When the 'X-Forwarded-For'
// header is set, then it is used instead.
func remoteAddr(r *http.Request) string {
	ff := r.Header.Get("X-Forwarded-For")
	if ff != "" {
		return ff
	}

	return r.RemoteAddr
}

func remoteHost(r *http.Request) string {
	a := remoteAddr(r)
	h := stripPort(a)
	if h != "" {
		return h
	}

	return "-"
}

func (f *accessLogFormatter) Format(e *logrus.Entry) ([]byte, error) {
	keys := []string{
		"host", "timestamp", "method", "uri", "proto",
		"status", "response-size", "prefix", "target", "duration"}

	values := make([]interface{}, len(keys))
	for i, key := range keys {
		values[i] = e.Data[key]
	}

	return []byte(fmt.Sprintf(f.format, values...)), nil
}

// LogAccess logs a data-plane request in Apache combined log format,
// with the matched route prefix and target in place of referer/user-agent.
func LogAccess(entry *AccessEntry) {
	if accessLog == nil || entry == nil {
		return
	}

	ts := entry.RequestTime.Format(dateFormat)

	host := "-"
	method := ""
	uri := ""
	proto := ""

	if entry.Request != nil {
		host = remoteHost(entry.Request)
		method = entry.Request.Method
		uri = entry.Request.RequestURI
		proto = entry.Request.Proto
	}

	duration := int64(entry.Duration / time.Millisecond)

	accessLog.WithFields(logrus.Fields{
		"timestamp":     ts,
		"host":          host,
		"method":        method,
		"uri":           uri,
		"proto":         proto,
		"status":        entry.StatusCode,
		"response-size": entry.ResponseSize,
		"prefix":        orDash(entry.Prefix),
		"target":        orDash(entry.Target),
		"duration":      duration,
	}).Infoln()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
