// Package report writes the leveled status lines KDT prints on stderr:
//
//	(info) Reading message from stdin
//	(success) Key imported
//	(FATAL) unknown key ID
package report

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// successField marks info entries rendered as "(success)".
const successField = "success"

// Reporter prints status lines for a single command invocation.
type Reporter struct {
	log *logrus.Logger
}

type config struct {
	quiet bool
	color *bool
	exit  func(int)
}

// Option configures a Reporter.
type Option func(*config)

// WithQuiet suppresses info, warning and success lines. Fatal lines are
// always written.
func WithQuiet(quiet bool) Option {
	return func(c *config) {
		c.quiet = quiet
	}
}

// WithColor forces colored output on or off. By default output is colored
// when the writer is a terminal.
func WithColor(color bool) Option {
	return func(c *config) {
		c.color = &color
	}
}

// WithExit replaces os.Exit as the function called by Fatal.
func WithExit(exit func(int)) Option {
	return func(c *config) {
		c.exit = exit
	}
}

// New returns a Reporter writing to w.
func New(w io.Writer, opts ...Option) *Reporter {
	cfg := config{exit: os.Exit}
	for _, opt := range opts {
		opt(&cfg)
	}

	color := isTerminal(w)
	if cfg.color != nil {
		color = *cfg.color
	}

	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&prefixFormatter{color: color})
	log.ExitFunc = cfg.exit
	if cfg.quiet {
		log.SetLevel(logrus.ErrorLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}

	return &Reporter{log: log}
}

// Info reports progress.
func (r *Reporter) Info(format string, args ...any) {
	r.log.Infof(format, args...)
}

// Warn reports something the user should look at.
func (r *Reporter) Warn(format string, args ...any) {
	r.log.Warnf(format, args...)
}

// Success reports a completed action.
func (r *Reporter) Success(format string, args ...any) {
	r.log.WithField(successField, true).Infof(format, args...)
}

// Fatal reports an unrecoverable failure and exits with status 1.
func (r *Reporter) Fatal(format string, args ...any) {
	r.log.Fatalf(format, args...)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// ANSI colors, see https://en.wikipedia.org/wiki/ANSI_escape_code#3/4_bit
const (
	colorRed    = 31
	colorGreen  = 32
	colorYellow = 33
	colorCyan   = 36
)

type prefixFormatter struct {
	color bool
}

func (f *prefixFormatter) Format(e *logrus.Entry) ([]byte, error) {
	label, color := "info", colorCyan
	switch {
	case e.Level <= logrus.ErrorLevel:
		label, color = "FATAL", colorRed
	case e.Level == logrus.WarnLevel:
		label, color = "warn", colorYellow
	case e.Data[successField] == true:
		label, color = "success", colorGreen
	}

	if f.color {
		return fmt.Appendf(nil, "\x1b[%dm(%s)\x1b[0m %s\n", color, label, e.Message), nil
	}
	return fmt.Appendf(nil, "(%s) %s\n", label, e.Message), nil
}
