package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
)

// PrettyHandler writes one line per record for a terminal. Training records
// get a fixed layout:
//
//	12:04:05 INFO  [2/10] epoch complete loss=0.6931 accuracy=0.5000 | val_loss=0.7012 val_accuracy=0.4800 (1.2s)
//
// The "epoch" and "of" attributes become the bracketed progress tag, val_*
// metrics follow a bar, and "elapsed" closes the line. Floats print with
// four decimals.
type PrettyHandler struct {
	level  slog.Leveler
	w      io.Writer
	mu     *sync.Mutex
	prefix string
	attrs  []slog.Attr
}

// NewPrettyHandler creates a PrettyHandler. Only opts.Level is honoured.
func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	h := &PrettyHandler{level: slog.LevelInfo, w: w, mu: &sync.Mutex{}}
	if opts != nil && opts.Level != nil {
		h.level = opts.Level
	}
	return h
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = flatten(attrs, h.prefix, a)
		return true
	})

	var line record
	for _, a := range attrs {
		line.add(a)
	}

	buf := make([]byte, 0, 256)
	if !r.Time.IsZero() {
		buf = append(buf, colorGray...)
		buf = r.Time.AppendFormat(buf, time.TimeOnly)
		buf = append(buf, colorReset...)
		buf = append(buf, ' ')
	}
	buf = append(buf, levelColor(r.Level)...)
	buf = append(buf, fmt.Sprintf("%-5s", r.Level.String())...)
	buf = append(buf, colorReset...)
	buf = line.appendTo(buf, r.Message)
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		next.attrs = flatten(next.attrs, h.prefix, a)
	}
	return &next
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

// flatten appends a with its key qualified by prefix, expanding groups into
// dotted keys.
func flatten(dst []slog.Attr, prefix string, a slog.Attr) []slog.Attr {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			dst = flatten(dst, prefix, ga)
		}
		return dst
	}
	if a.Key == "" {
		return dst
	}
	a.Key = prefix + a.Key
	return append(dst, a)
}

// record sorts a record's attributes into the parts of the line.
type record struct {
	epoch, of  int64
	hasEpoch   bool
	elapsed    time.Duration
	hasElapsed bool
	fields     []slog.Attr
	validation []slog.Attr
}

func (l *record) add(a slog.Attr) {
	switch {
	case a.Key == "epoch" && a.Value.Kind() == slog.KindInt64:
		l.epoch, l.hasEpoch = a.Value.Int64(), true
	case a.Key == "of" && a.Value.Kind() == slog.KindInt64:
		l.of = a.Value.Int64()
	case a.Key == "elapsed" && a.Value.Kind() == slog.KindDuration:
		l.elapsed, l.hasElapsed = a.Value.Duration(), true
	case strings.HasPrefix(a.Key, "val_"):
		l.validation = append(l.validation, a)
	default:
		l.fields = append(l.fields, a)
	}
}

func (l *record) appendTo(buf []byte, msg string) []byte {
	if l.hasEpoch {
		buf = append(buf, " ["...)
		buf = strconv.AppendInt(buf, l.epoch, 10)
		if l.of > 0 {
			buf = append(buf, '/')
			buf = strconv.AppendInt(buf, l.of, 10)
		}
		buf = append(buf, ']')
	} else if l.of != 0 {
		l.fields = append(l.fields, slog.Int64("of", l.of))
	}
	if msg != "" {
		buf = append(buf, ' ')
		buf = append(buf, msg...)
	}
	for _, a := range l.fields {
		buf = appendAttr(append(buf, ' '), a)
	}
	if len(l.validation) > 0 {
		buf = append(buf, " |"...)
		for _, a := range l.validation {
			buf = appendAttr(append(buf, ' '), a)
		}
	}
	if l.hasElapsed {
		buf = append(buf, " ("...)
		buf = append(buf, l.elapsed.String()...)
		buf = append(buf, ')')
	}
	return buf
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return colorRed
	case level >= slog.LevelWarn:
		return colorYellow
	case level >= slog.LevelInfo:
		return colorBlue
	default:
		return colorGray
	}
}

func appendAttr(buf []byte, a slog.Attr) []byte {
	buf = append(buf, a.Key...)
	buf = append(buf, '=')
	v := a.Value
	switch v.Kind() {
	case slog.KindFloat64:
		return strconv.AppendFloat(buf, v.Float64(), 'f', 4, 64)
	case slog.KindInt64:
		return strconv.AppendInt(buf, v.Int64(), 10)
	case slog.KindUint64:
		return strconv.AppendUint(buf, v.Uint64(), 10)
	case slog.KindBool:
		return strconv.AppendBool(buf, v.Bool())
	case slog.KindDuration:
		return append(buf, v.Duration().String()...)
	case slog.KindTime:
		return v.Time().AppendFormat(buf, time.RFC3339)
	case slog.KindString:
		return appendString(buf, v.String())
	}
	if err, ok := v.Any().(error); ok {
		return appendString(buf, err.Error())
	}
	return appendString(buf, fmt.Sprint(v.Any()))
}

func appendString(buf []byte, s string) []byte {
	if needsQuoting(s) {
		return strconv.AppendQuote(buf, s)
	}
	return append(buf, s...)
}

func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	for _, c := range s {
		if c == '"' || c == '=' || c == '|' || unicode.IsSpace(c) || !unicode.IsPrint(c) {
			return true
		}
	}
	return false
}
