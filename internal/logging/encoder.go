package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

var bufferPool = buffer.NewPool()

// lineEncoder renders log entries as "HH:MM:SS LEVEL - message [k=v ...]",
// the exact line format spec.md §6 requires for the process log sink.
// It embeds a console encoder so every ObjectEncoder primitive (AddString,
// AddInt, ...) needed to satisfy zapcore.Encoder is delegated rather than
// reimplemented; only EncodeEntry and Clone are overridden.
type lineEncoder struct {
	zapcore.Encoder
}

func newLineEncoder() zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		MessageKey: "msg",
		LevelKey:   "level",
		TimeKey:    "time",
	}
	return &lineEncoder{Encoder: zapcore.NewConsoleEncoder(cfg)}
}

func (e *lineEncoder) Clone() zapcore.Encoder {
	return &lineEncoder{Encoder: e.Encoder.Clone()}
}

func (e *lineEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	buf := bufferPool.Get()

	buf.AppendString(entry.Time.UTC().Format("15:04:05"))
	buf.AppendByte(' ')
	buf.AppendString(strings.ToUpper(entry.Level.String()))
	buf.AppendString(" - ")
	buf.AppendString(entry.Message)

	if len(fields) > 0 {
		mapEnc := zapcore.NewMapObjectEncoder()
		for _, f := range fields {
			f.AddTo(mapEnc)
		}
		for k, v := range mapEnc.Fields {
			buf.AppendByte(' ')
			buf.AppendString(k)
			buf.AppendByte('=')
			buf.AppendString(toString(v))
		}
	}
	buf.AppendByte('\n')
	return buf, nil
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	case nil:
		return "<nil>"
	default:
		return fmt.Sprintf("%v", t)
	}
}
