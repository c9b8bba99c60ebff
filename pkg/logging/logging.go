package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/Slach/systemlogs-timeline/pkg/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	mainPackage = "github.com/Slach/systemlogs-timeline/"
	// StderrPath as --log-path keeps logging on the console.
	StderrPath = "-"
)

var headerFields = []string{"time", "level", "caller", "message"}

// textWriter turns zerolog JSON events into one readable line each. Multiline string
// fields, such as generated SQL, are written as an indented block below the line.
type textWriter struct {
	Out io.Writer
}

func (w *textWriter) Write(p []byte) (int, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(p), &fields); err != nil {
		return w.Out.Write(p)
	}

	str := func(key string) string {
		raw, ok := fields[key]
		if !ok {
			return ""
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return string(raw)
		}
		return s
	}

	var line, blocks strings.Builder
	if ts := str("time"); ts != "" {
		line.WriteString(ts + " ")
	}
	if level := str("level"); level != "" {
		line.WriteString(strings.ToUpper(level) + " ")
	}
	if caller := str("caller"); caller != "" {
		line.WriteString(caller + " > ")
	}
	line.WriteString(str("message"))

	keys := make([]string, 0, len(fields))
	for k := range fields {
		if !slices.Contains(headerFields, k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	for _, k := range keys {
		raw := fields[k]
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			s = strings.TrimSuffix(s, "\n")
			if strings.Contains(s, "\n") {
				_, _ = fmt.Fprintf(&blocks, "  %s:\n    %s\n", k, strings.ReplaceAll(s, "\n", "\n    "))
				continue
			}
			_, _ = fmt.Fprintf(&line, " %s=%s", k, s)
			continue
		}
		var v interface{}
		if err := json.Unmarshal(raw, &v); err == nil {
			_, _ = fmt.Fprintf(&line, " %s=%v", k, v)
			continue
		}
		_, _ = fmt.Fprintf(&line, " %s=%s", k, raw)
	}

	line.WriteString("\n")
	line.WriteString(blocks.String())
	if _, err := w.Out.Write([]byte(line.String())); err != nil {
		return 0, err
	}
	return len(p), nil
}

func trimModule(s string) string {
	return strings.TrimPrefix(s, mainPackage)
}

// errorStack renders the innermost pkg/errors frame, or the runtime stack when the error has none.
func errorStack(err error) interface{} {
	if stackErr, ok := err.(interface{ StackTrace() errors.StackTrace }); ok {
		if st := stackErr.StackTrace(); len(st) > 0 {
			parts := strings.Split(fmt.Sprintf("%+v", st[0]), "\n\t")
			if len(parts) >= 2 {
				return trimModule(parts[0]) + " > " + trimModule(parts[1])
			}
		}
	}

	pcs := make([]uintptr, 10)
	// runtime.Callers, errorStack and the zerolog frame calling it
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	var b strings.Builder
	for {
		frame, more := frames.Next()
		_, _ = fmt.Fprintf(&b, "%s:%d > %s\n", trimModule(frame.File), frame.Line, trimModule(frame.Function))
		if !more {
			break
		}
	}
	if b.Len() == 0 {
		return nil
	}
	return b.String()
}

// InitConsoleStdErrLog sets up stderr logging used until the log file is open.
func InitConsoleStdErrLog() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	zerolog.ErrorStackMarshaler = errorStack
	zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
		return trimModule(file) + ":" + strconv.Itoa(line)
	}

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().
		Timestamp().
		Caller().
		Logger()
}

// SetLevel applies --log-level; an empty value means info.
func SetLevel(level string) error {
	if level == "" {
		level = zerolog.InfoLevel.String()
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// fatalStackHook adds stack traces to Fatal level logs
type fatalStackHook struct{}

func (h fatalStackHook) Run(e *zerolog.Event, level zerolog.Level, _ string) {
	if level == zerolog.FatalLevel {
		e.Stack()
	}
}

// DefaultLogPath is the log file used when --log-path is not given.
func DefaultLogPath(home string) string {
	return filepath.Join(home, ".systemlogs-timeline", "systemlogs-timeline.log")
}

// InitLogFile moves logging into the log file so the command output on stdout stays clean.
func InitLogFile(cliInstance *types.CLI, version string) error {
	logPath := ""
	if cliInstance != nil {
		logPath = cliInstance.LogPath
		if err := SetLevel(cliInstance.LogLevel); err != nil {
			return err
		}
	}
	if logPath == StderrPath {
		log.Logger = log.Logger.With().Str("version", version).Logger()
		return nil
	}
	if logPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "failed to get user home directory")
		}
		logPath = DefaultLogPath(home)
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return errors.Wrap(err, "failed to create log directory")
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "failed to open log file %s", logPath)
	}

	log.Logger = zerolog.New(zerolog.SyncWriter(&textWriter{Out: logFile})).
		Hook(fatalStackHook{}).
		With().
		Timestamp().
		Caller().
		Str("version", version).
		Logger()
	return nil
}
