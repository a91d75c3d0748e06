package loggingtest_test

import (
	"testing"
	"time"

	"github.com/chproxy/chproxy/logging/loggingtest"
)

func TestLoggingTest(t *testing.T) {
	lt := loggingtest.New()
	defer lt.Close()

	lt.Debug("debug")
	lt.Debugf("debugf: %s", "foo")
	lt.Info("info")
	lt.Infof("infof: %s", "foo")
	lt.Warn("warn")
	lt.Warnf("warnf: %s", "foo")
	lt.Error("error")
	lt.Errorf("errorf: %s", "foo")
	for _, s := range []string{"debug", "debugf: foo", "info", "infof: foo",
		"warn", "warnf: foo", "error", "errorf: foo"} {
		if err := lt.WaitFor(s, time.Second); err != nil {
			t.Fatalf("Failed to get %q: %v", s, err)
		}
	}

	lt.Reset()
	if err := lt.WaitForN("foo", 2, time.Millisecond); err != loggingtest.ErrWaitTimeout {
		t.Fatalf("Failed to get err want: %v, got: %v", loggingtest.ErrWaitTimeout, err)
	}
}

func TestLoggingTestWithFields(t *testing.T) {
	lt := loggingtest.New()
	defer lt.Close()

	lt.WithFields(map[string]interface{}{"prefix": "/a", "target": "http://b"}).Warnf("router: failed to update last_activity: %v", "boom")

	if err := lt.WaitFor("prefix=/a", time.Second); err != nil {
		t.Fatalf("expected fields to appear in log entry: %v", err)
	}
	if err := lt.WaitFor("failed to update last_activity: boom", time.Second); err != nil {
		t.Fatalf("expected formatted message to appear: %v", err)
	}
}
