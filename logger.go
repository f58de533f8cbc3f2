package lovely

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/multi"
	"github.com/apex/log/handlers/text"

	"github.com/u2386/go-lovely/config"
)

// newLogger writes text to w and JSON to a fresh file in the config's log
// directory. Without a log file the logger still writes to w.
func newLogger(cfg config.Config, w io.Writer) (log.Interface, io.Closer) {
	level := log.InfoLevel
	if cfg.Debug {
		level = log.DebugLevel
	}

	l := &log.Logger{Handler: text.New(w), Level: level}
	f, err := openLogFile(cfg.LogPath(), time.Now())
	if err != nil {
		l.WithError(err).Warn("log file disabled")
		return l, nil
	}
	l.Handler = multi.New(text.New(w), json.New(f))
	return l, f
}

func openLogFile(dir string, now time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("lovely-%s.log", now.Format("2006.01.02-15.04.05"))
	return os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
