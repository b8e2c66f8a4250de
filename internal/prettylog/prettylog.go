// MIT License
//
// # Copyright (c) 2017 Olivier Poitrey
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
// Based on https://github.com/rs/zerolog/blob/master/console.go.
package prettylog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

const (
	colorBlack = iota + 30
	colorRed
	colorGreen
	colorYellow
	colorBlue
	colorMagenta
	colorCyan
	colorWhite

	colorBold     = 1
	colorDarkGray = 90
)

// Keys the syscall layer's handler adds to every record.
const (
	seqKey   = "seq"
	pidKey   = "pid"
	sysKey   = "sys"
	errnoKey = "errno"
	errorKey = "err"
)

// Lines are laid out as
//
//	seq pid/sys time level source > msg errno=... key=value ...
//
// Well known keys come first in fixed order, then errno and err, then the
// rest sorted by name. Struct-valued fields (a stat buffer, say) are
// printed indented on their own lines.
type Writer struct {
	out       io.Writer
	formatter formatter
}

// Option configures a Writer.
type Option func(*Writer)

// WithColor forces color output on or off instead of detecting a
// terminal.
func WithColor(color bool) Option {
	return func(w *Writer) { w.formatter.noColor = !color }
}

// NewWriter returns a Writer that renders JSON slog lines as console
// lines on out.
func NewWriter(out io.Writer, opts ...Option) *Writer {
	w := Writer{
		out: out,
	}

	noColor := (os.Getenv("NO_COLOR") != "") || os.Getenv("TERM") == "dumb" ||
		(!isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()))
	noColor = noColor && !(os.Getenv("FORCE_COLOR") != "")
	w.formatter = formatter{noColor: noColor}

	for _, opt := range opts {
		opt(&w)
	}
	return &w
}

// ErrUndecodable is returned by Write for input that is not a JSON
// record. The input has still been copied to the output.
var ErrUndecodable = errors.New("cannot decode event")

var writePool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 1024))
	},
}

// Write renders one JSON record. Input that does not decode is copied
// through unchanged and ErrUndecodable is returned.
func (w *Writer) Write(p []byte) (n int, err error) {
	buf := writePool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		writePool.Put(buf)
	}()

	var evt map[string]any
	d := json.NewDecoder(bytes.NewReader(p))
	d.UseNumber()
	if err := d.Decode(&evt); err != nil {
		if n, err := w.out.Write(p); err != nil {
			return n, err
		}
		return len(p), fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	for _, key := range []string{seqKey, pidKey, slog.TimeKey, slog.LevelKey, slog.SourceKey, slog.MessageKey} {
		w.writePart(buf, evt, key)
	}
	var blocks []string
	w.writeFields(evt, buf, &blocks)
	buf.WriteByte('\n')
	for _, block := range blocks {
		buf.WriteString(block)
		buf.WriteByte('\n')
	}

	if _, err := w.out.Write(buf.Bytes()); err != nil {
		return 0, err
	}
	return len(p), nil
}

func jsonMarshal(v any, indent bool) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if indent {
		encoder.SetIndent("    ", "  ")
	}
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// needsQuote returns true when the string s should be quoted in output.
func needsQuote(s string) bool {
	for i := range s {
		if s[i] < 0x20 || s[i] > 0x7e || s[i] == ' ' || s[i] == '\\' || s[i] == '"' {
			return true
		}
	}
	return false
}

// writeFields appends formatted key-value pairs to buf. Object-valued
// fields go to blocks instead.
func (w Writer) writeFields(evt map[string]any, buf *bytes.Buffer, blocks *[]string) {
	var fields []string
	for field := range evt {
		switch field {
		case seqKey, pidKey, sysKey, slog.LevelKey, slog.TimeKey, slog.MessageKey, slog.SourceKey:
			continue
		}
		fields = append(fields, field)
	}
	slices.SortFunc(fields, func(a, b string) int {
		return strings.Compare(fieldRank(a), fieldRank(b))
	})

	for _, field := range fields {
		if m, ok := evt[field].(map[string]any); ok {
			b, err := jsonMarshal(m, true)
			if err != nil {
				*blocks = append(*blocks, w.formatter.colorize(fmt.Sprintf("[error: %v]", err), colorRed))
				continue
			}
			*blocks = append(*blocks, "    "+w.formatter.fieldName(field)+string(b))
			continue
		}

		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(w.formatter.fieldName(field))

		switch value := evt[field].(type) {
		case string:
			if needsQuote(value) {
				value = strconv.Quote(value)
			}
			buf.WriteString(w.formatter.fieldValue(field, value))
		case json.Number:
			buf.WriteString(w.formatter.fieldValue(field, string(value)))
		default:
			b, err := jsonMarshal(value, false)
			if err != nil {
				buf.WriteString(w.formatter.colorize(fmt.Sprintf("[error: %v]", err), colorRed))
			} else {
				buf.WriteString(w.formatter.fieldValue(field, string(b)))
			}
		}
	}
}

// fieldRank sorts errno and err ahead of everything else.
func fieldRank(field string) string {
	switch field {
	case errnoKey:
		return "0"
	case errorKey:
		return "1"
	}
	return "2" + field
}

func padLeft(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return strings.Repeat(" ", n-len(s)) + s
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}

// writePart appends one of the fixed leading columns to buf.
func (w Writer) writePart(buf *bytes.Buffer, evt map[string]any, key string) {
	var s string
	switch key {
	case slog.LevelKey:
		s = w.formatter.level(evt[key])
	case slog.TimeKey:
		s = w.formatter.timestamp(evt[key])
	case slog.MessageKey:
		s = w.formatter.message(evt[slog.LevelKey], evt[key])
	case slog.SourceKey:
		s = w.formatter.caller(evt[key])
	case pidKey:
		if evt[pidKey] == nil {
			break
		}
		col := fmt.Sprint(evt[pidKey])
		if sys, ok := evt[sysKey]; ok {
			col += "/" + fmt.Sprint(sys)
		}
		s = padRight(col, 14)
	case seqKey:
		if evt[seqKey] == nil {
			break
		}
		s = padLeft(fmt.Sprint(evt[key]), 5)
	}

	if len(s) > 0 {
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(s)
	}
}

type formatter struct {
	noColor bool
}

// colorize wraps s in the ANSI codes c, innermost first, unless color is
// off.
func (f *formatter) colorize(s string, c ...int) string {
	if f.noColor {
		return s
	}
	for _, c := range c {
		s = fmt.Sprintf("\x1b[%dm%s\x1b[0m", c, s)
	}
	return s
}

const timeFormat = "15:04:05.000"

func (f *formatter) timestamp(i any) string {
	s, ok := i.(string)
	if !ok {
		return ""
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		s = ts.UTC().Format(timeFormat)
	}
	return f.colorize(s, colorDarkGray)
}

var levelColors = map[slog.Level]int{
	slog.LevelDebug: colorMagenta,
	slog.LevelInfo:  colorGreen,
	slog.LevelWarn:  colorYellow,
	slog.LevelError: colorRed,
}

var formattedLevels = map[slog.Level]string{
	slog.LevelDebug: "DBG",
	slog.LevelInfo:  "INF",
	slog.LevelWarn:  "WRN",
	slog.LevelError: "ERR",
}

func parseLevel(i any) (slog.Level, bool) {
	s, ok := i.(string)
	if !ok {
		return 0, false
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, false
	}
	return level, true
}

func (f *formatter) level(i any) string {
	level, ok := parseLevel(i)
	if !ok {
		return "???"
	}
	if fl, ok := formattedLevels[level]; ok {
		return f.colorize(fl, levelColors[level])
	}
	// Levels between the named ones, like "WARN+2".
	return f.colorize(level.String(), levelColors[level&^3])
}

func (f *formatter) caller(i any) string {
	m, ok := i.(map[string]any)
	if !ok {
		return ""
	}
	file, _ := m["file"].(string)
	line, _ := m["line"].(json.Number)
	if file == "" {
		return ""
	}
	c := fmt.Sprintf("%s/%s:%s", path.Base(path.Dir(file)), path.Base(file), line)
	return f.colorize(c, colorDarkGray) + f.colorize(" >", colorCyan)
}

func (f *formatter) message(level any, i any) string {
	msg, _ := i.(string)
	if msg == "" {
		return ""
	}
	if l, ok := parseLevel(level); ok && l >= slog.LevelInfo {
		return f.colorize(msg, colorBold)
	}
	return msg
}

func (f *formatter) fieldName(name string) string {
	return f.colorize(name+"=", colorCyan)
}

func (f *formatter) fieldValue(field string, s string) string {
	switch field {
	case errnoKey, errorKey:
		return f.colorize(s, colorBold, colorRed)
	}
	return s
}
