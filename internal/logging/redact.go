package logging

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/switchboard/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// secretMarshaler wraps config.Secret for Zap object marshaling.
type secretMarshaler struct {
	key string
	val config.Secret
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (s *secretMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString(s.key, fmt.Sprintf("[REDACTED:%d]", len(s.val.Value())))
	return nil
}

// Secret creates a Zap field for config.Secret with redaction indicator.
func Secret(key string, val config.Secret) zap.Field {
	return zap.Object(key, &secretMarshaler{key: key, val: val})
}

// RedactedString creates a Zap field with redacted value and length.
func RedactedString(key, val string) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val))+"]")
}

// redactor holds the compiled redaction rules shared by the stdout
// encoder and the OTEL core.
type redactor struct {
	fields   map[string]bool
	patterns []*regexp.Regexp
}

func newRedactor(cfg RedactionConfig) (*redactor, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	fields := make(map[string]bool, len(cfg.Fields))
	for _, f := range cfg.Fields {
		fields[strings.ToLower(f)] = true
	}

	var patterns []*regexp.Regexp
	for _, p := range cfg.Patterns {
		if len(p) > 200 {
			return nil, fmt.Errorf("redaction pattern too long (max 200 chars): %q", p)
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}
	return &redactor{fields: fields, patterns: patterns}, nil
}

func (r *redactor) sensitiveKey(key string) bool {
	return r != nil && r.fields[strings.ToLower(key)]
}

func (r *redactor) sensitiveValue(val string) bool {
	if r == nil {
		return false
	}
	for _, re := range r.patterns {
		if re.MatchString(val) {
			return true
		}
	}
	return false
}

// field returns f with its value replaced when the key is sensitive or a
// string value matches a secret pattern. Nested objects are left to the
// marshaler.
func (r *redactor) field(f zapcore.Field) (zapcore.Field, bool) {
	if r == nil {
		return f, false
	}
	if r.sensitiveKey(f.Key) {
		return zap.String(f.Key, "[REDACTED]"), true
	}
	var val string
	switch f.Type {
	case zapcore.StringType:
		val = f.String
	case zapcore.ByteStringType:
		if b, ok := f.Interface.([]byte); ok {
			val = string(b)
		}
	case zapcore.StringerType, zapcore.ErrorType:
		val = renderValue(f)
	}
	if val != "" && r.sensitiveValue(val) {
		return zap.String(f.Key, "[REDACTED:pattern]"), true
	}
	return f, false
}

// fieldsOf rewrites fs, copying only when something changes.
func (r *redactor) fieldsOf(fs []zapcore.Field) []zapcore.Field {
	if r == nil {
		return fs
	}
	var out []zapcore.Field
	for i, f := range fs {
		rf, changed := r.field(f)
		if out == nil {
			if !changed {
				continue
			}
			out = make([]zapcore.Field, len(fs))
			copy(out, fs[:i])
		}
		out[i] = rf
	}
	if out == nil {
		return fs
	}
	return out
}

func renderValue(f zapcore.Field) (s string) {
	defer func() {
		if recover() != nil {
			s = ""
		}
	}()
	switch v := f.Interface.(type) {
	case fmt.Stringer:
		return v.String()
	case error:
		return v.Error()
	}
	return ""
}

// RedactingEncoder wraps a zapcore.Encoder to redact sensitive fields,
// both those added through With and those passed on each call.
type RedactingEncoder struct {
	zapcore.Encoder
	r *redactor
}

// NewRedactingEncoder wraps an encoder with redaction rules.
// Returns error if any redaction pattern fails to compile.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	r, err := newRedactor(cfg)
	if err != nil {
		return nil, err
	}
	return &RedactingEncoder{Encoder: base, r: r}, nil
}

// shouldRedactKey returns true if the key should be redacted.
func (e *RedactingEncoder) shouldRedactKey(key string) bool {
	return e.r.sensitiveKey(key)
}

// EncodeEntry redacts per-call fields before the wrapped encoder sees
// them. The wrapped encoder serializes them into its own clone, so the
// Add* overrides below never run for these.
func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	return e.Encoder.EncodeEntry(ent, e.r.fieldsOf(fields))
}

// AddString redacts sensitive field names and value patterns.
func (e *RedactingEncoder) AddString(key, val string) {
	switch {
	case e.r.sensitiveKey(key):
		e.Encoder.AddString(key, "[REDACTED]")
	case e.r.sensitiveValue(val):
		e.Encoder.AddString(key, "[REDACTED:pattern]")
	default:
		e.Encoder.AddString(key, val)
	}
}

// AddByteString redacts sensitive field names and value patterns.
func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	switch {
	case e.r.sensitiveKey(key):
		e.Encoder.AddString(key, "[REDACTED]")
	case e.r.sensitiveValue(string(val)):
		e.Encoder.AddString(key, "[REDACTED:pattern]")
	default:
		e.Encoder.AddByteString(key, val)
	}
}

// AddBinary redacts sensitive field names.
func (e *RedactingEncoder) AddBinary(key string, val []byte) {
	if e.r.sensitiveKey(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return
	}
	e.Encoder.AddBinary(key, val)
}

// AddReflected redacts the whole value when the key is sensitive.
func (e *RedactingEncoder) AddReflected(key string, val interface{}) error {
	if e.r.sensitiveKey(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

// AddArray redacts sensitive field names.
func (e *RedactingEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	if e.r.sensitiveKey(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return nil
	}
	return e.Encoder.AddArray(key, arr)
}

// AddObject redacts sensitive field names.
func (e *RedactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.r.sensitiveKey(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

// Clone creates a copy of the encoder.
func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{Encoder: e.Encoder.Clone(), r: e.r}
}

// redactingCore applies the same rules to cores that do their own
// encoding, such as the OTEL bridge.
type redactingCore struct {
	zapcore.Core
	r *redactor
}

func newRedactingCore(core zapcore.Core, cfg RedactionConfig) (zapcore.Core, error) {
	r, err := newRedactor(cfg)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return core, nil
	}
	return &redactingCore{Core: core, r: r}, nil
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(c.r.fieldsOf(fields)), r: c.r}
}

func (c *redactingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *redactingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(ent, c.r.fieldsOf(fields))
}
