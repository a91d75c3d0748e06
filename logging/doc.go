/*
Package logging implements application log instrumentation and an
Apache-combined-style access log for the proxy, the management API and
the router.

Application Log

The application log uses the logrus package. Components take a Logger
(see logger.go) rather than calling logrus directly, so tests can
substitute loggingtest.TestLogger and assert on log output.

During startup initialization, it is possible to redirect the log output
from the default /dev/stderr to another file, set a common prefix for
each entry, and set the log level (see Options and Init).

Access Log

The access log prints one line per data-plane request in Apache combined
log format, with the matched route prefix and upstream target in place
of referer/user-agent. To output entries, use LogAccess.

During initialization, it is possible to redirect the access log output,
switch it to JSON, or disable it entirely.
*/
package logging
