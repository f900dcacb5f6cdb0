package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Init configures the global logrus logger for JSON output and stamps every
// entry with the instance name.
func Init(instance, level string, out io.Writer) {
	if out == nil {
		out = os.Stdout
	}
	logrus.SetOutput(out)
	logrus.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "timestamp",
			logrus.FieldKeyMsg:  "message",
		},
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
	logrus.StandardLogger().ReplaceHooks(make(logrus.LevelHooks))
	logrus.AddHook(&instanceHook{instance: instance})
}

type instanceHook struct {
	instance string
}

func (h *instanceHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *instanceHook) Fire(e *logrus.Entry) error {
	if _, ok := e.Data["instance"]; !ok {
		e.Data["instance"] = h.instance
	}
	return nil
}

// JSONLogger bridges the stdlib log package into logrus so third-party code
// writing through log.Printf ends up as structured lines too.
type JSONLogger struct {
	Instance string
}

func (l *JSONLogger) Write(p []byte) (n int, err error) {
	msg := strings.TrimRight(string(p), "\n")
	logrus.WithField("instance", l.Instance).WithField("source", "stdlib").Info(msg)
	return len(p), nil
}
