// Package logger renders apex/log entries for a terminal.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
)

var (
	bold    = color.New(color.Bold)
	boldRed = color.New(color.Bold, color.FgRed)
)

var levelNames = [...]string{
	log.DebugLevel: "debug",
	log.InfoLevel:  "==>",
	log.WarnLevel:  "warning",
	log.ErrorLevel: "error",
	log.FatalLevel: "fatal",
}

// Handler prints one line per entry: a level marker, the message and the
// fields. When Stacktraces is set, an "error" field is printed with its
// stack trace.
type Handler struct {
	mu          sync.Mutex
	Writer      io.Writer
	Stacktraces bool
}

// New returns a Handler writing to w, colored when w is a terminal file.
func New(w io.Writer, useColors bool) *Handler {
	if f, ok := w.(*os.File); ok && useColors {
		return &Handler{Writer: colorable.NewColorable(f)}
	}
	return &Handler{Writer: colorable.NewNonColorable(w)}
}

// Configure installs a terminal handler on the default apex logger.
func Configure(debug bool) {
	h := New(os.Stderr, true)
	h.Stacktraces = debug
	log.SetHandler(h)
	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// HandleLog implements log.Handler.
func (h *Handler) HandleLog(e *log.Entry) error {
	c := cli.Colors[e.Level]
	names := e.Fields.Names()

	h.mu.Lock()
	defer h.mu.Unlock()

	if e.Level == log.InfoLevel {
		fmt.Fprintf(h.Writer, "%s %s", c.Sprint(levelNames[e.Level]), bold.Sprint(e.Message))
	} else {
		fmt.Fprintf(h.Writer, "%s: %s", c.Sprint(levelNames[e.Level]), e.Message)
	}
	for _, name := range names {
		if name == "error" && h.Stacktraces {
			continue
		}
		fmt.Fprintf(h.Writer, " %s=%v", c.Sprint(name), e.Fields.Get(name))
	}
	fmt.Fprintln(h.Writer)

	if !h.Stacktraces {
		return nil
	}
	if err, ok := e.Fields.Get("error").(error); ok {
		err = errors.WithStackDepthIf(err, 1)
		fmt.Fprintf(h.Writer, "%s %v\n%s\n%+v\n\n", boldRed.Sprint("error:"), err, boldRed.Sprint("Stacktrace:"), err)
	}
	return nil
}
