// Package logging is a single process-wide line emitter built on logrus,
// shared by every component that logs: server, acceptor, connection
// handler, reactor. logrus's own mutex-guarded output serializes writers
// across goroutines, so nothing in this package adds a second lock.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the subset of *logrus.Logger the server layer depends on,
// satisfied directly by *logrus.Logger or by anything built on it.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

const timestampFormat = "2006-01-02 15:04:05"

// lineFormatter renders one line per entry: "[timestamp] message", with an
// "ERROR: " prefix on the message for error-level entries and above.
type lineFormatter struct{}

func (lineFormatter) Format(e *logrus.Entry) ([]byte, error) {
	prefix := ""
	if e.Level <= logrus.ErrorLevel {
		prefix = "ERROR: "
	}
	line := fmt.Sprintf("[%s] %s%s\n", e.Time.Format(timestampFormat), prefix, e.Message)
	return []byte(line), nil
}

// New builds a logrus.Logger writing to out (stdout if nil) in the
// "[timestamp] METHOD URI STATUS" / "[timestamp] ERROR: detail" line format.
func New(out io.Writer) *logrus.Logger {
	if out == nil {
		out = os.Stdout
	}
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(lineFormatter{})
	return l
}
