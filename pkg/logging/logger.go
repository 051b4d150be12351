// Package logging builds the zap logger shared by docdiff components.
package logging

import (
	"bytes"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// Options controls logger construction.
type Options struct {
	// Debug lowers the level to debug and enables caller info.
	Debug bool

	// File, if set, receives a copy of every log line.
	File string

	// JSON switches to the production JSON encoder (server mode).
	JSON bool
}

const colorEncoder = "docdiffColorConsole"

func init() {
	_ = zap.RegisterEncoder(colorEncoder, func(cfg zapcore.EncoderConfig) (zapcore.Encoder, error) {
		return newColor(cfg), nil
	})
}

// New builds a logger. Console output goes to stderr so reports written to
// stdout stay clean for piping.
func New(opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	if opts.JSON {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.Encoding = colorEncoder
		cfg.EncoderConfig.EncodeTime = shortTimeEncoder
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	cfg.OutputPaths = []string{"stderr"}
	if opts.File != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, opts.File)
	}

	if opts.Debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		cfg.DisableStacktrace = true
		cfg.EncoderConfig.EncodeCaller = nil
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build config for logger: %v", err)
	}
	return logger, nil
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func shortTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("15:04:05.000"))
}

// color keeps ANSI escapes emitted by level encoders intact; the console
// encoder would otherwise escape them.
type color struct {
	*zapcore.EncoderConfig
	zapcore.Encoder
}

func newColor(cfg zapcore.EncoderConfig) zapcore.Encoder {
	return color{
		EncoderConfig: &cfg,
		Encoder:       zapcore.NewConsoleEncoder(cfg),
	}
}

func (c color) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	buff, err := c.Encoder.EncodeEntry(ent, fields)
	if err != nil {
		return nil, err
	}

	out := bytes.ReplaceAll(buff.Bytes(), []byte("\\u001b"), []byte("\u001b"))
	buff.Reset()
	buff.AppendString(string(out))
	return buff, nil
}

func (c color) Clone() zapcore.Encoder {
	return color{
		EncoderConfig: c.EncoderConfig,
		Encoder:       c.Encoder.Clone(),
	}
}
