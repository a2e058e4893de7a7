package logger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
}

// structuredHandler renders every record as one flat line, JSON or
// key=value, with well-known keys first. Groups become dotted keys.
type structuredHandler struct {
	cfg    handlerConfig
	attrs  []slog.Attr
	prefix string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = defaultKeyOrder
	}
	return &structuredHandler{cfg: cfg}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		// bake the current group into the key
		clone.attrs = append(clone.attrs, slog.Attr{Key: joinKey(h.prefix, a.Key), Value: a.Value})
	}
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return fmt.Errorf("logger: writer not initialized")
	}
	json := h.cfg.format == formatJSON

	f := make(fields, 16)
	ts := r.Time.UTC()
	f["ts"] = ts.Truncate(time.Millisecond).Format(timeFormatMillis)
	f["level"] = levelName(r.Level.String())
	if json {
		f["ts_unix_nano"] = ts.UnixNano()
	}
	for _, a := range h.attrs {
		f.add("", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		f.add(h.prefix, a)
		return true
	})
	f.fromContext(ctx)
	f.finish(r.Message, json)

	var line []byte
	if json {
		var err error
		if line, err = f.json(h.cfg.keyOrder); err != nil {
			return err
		}
	} else {
		line = f.kv(h.cfg.keyOrder)
	}
	return h.cfg.writer.Write(append(line, '\n'))
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	default:
		return prefix + "." + key
	}
}

// fields is one log line before encoding.
type fields map[string]any

// add flattens a into f under prefix. Empty and nil values are skipped.
func (f fields) add(prefix string, a slog.Attr) {
	key := joinKey(prefix, a.Key)
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			f.add(key, child)
		}
		return
	}
	if key == "" {
		return
	}
	key, val := normalize(key, v)
	switch x := val.(type) {
	case nil:
		return
	case string:
		if x == "" {
			return
		}
	}
	f[key] = val
}

func normalize(key string, v slog.Value) (string, any) {
	switch v.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(v.String())
	case slog.KindBool:
		return key, v.Bool()
	case slog.KindInt64:
		return key, v.Int64()
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return key, int64(u)
		}
		return key, v.Uint64()
	case slog.KindFloat64:
		return key, v.Float64()
	case slog.KindDuration:
		return millisKey(key), RoundMS(v.Duration()).Milliseconds()
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano)
	}
	switch x := v.Any().(type) {
	case nil:
		return key, nil
	case error:
		return key, x.Error()
	case time.Duration:
		return millisKey(key), RoundMS(x).Milliseconds()
	case fmt.Stringer:
		return key, strings.TrimSpace(x.String())
	case string:
		return key, strings.TrimSpace(x)
	default:
		return key, fmt.Sprint(x)
	}
}

// millisKey puts the unit of a duration into its key.
func millisKey(key string) string {
	if key == "duration" || !strings.HasSuffix(key, "_ms") {
		return key + "_ms"
	}
	return key
}

// fromContext fills correlation fields the record did not set itself.
func (f fields) fromContext(ctx context.Context) {
	m := metaFrom(ctx)
	fill := func(key string, val any, ok bool) {
		if _, set := f[key]; ok && !set {
			f[key] = val
		}
	}
	fill("rid", m.rid, m.rid != "")
	fill("update_id", m.updateID, m.updateID != 0)
	fill("user_id", m.userID, m.userID != 0)
	fill("chat_id", m.chatID, m.chatID != 0)
	fill("handler", m.handler, m.handler != "")
}

// finish applies defaults and canonical spellings.
func (f fields) finish(msg string, json bool) {
	if rid, ok := f["rid"].(string); ok {
		if c := CompactRID(rid); c != rid {
			if _, set := f["rid_full"]; json && !set {
				f["rid_full"] = rid
			}
			f["rid"] = c
		}
	}
	if _, ok := f["event"]; !ok {
		f["event"] = msg
		if msg == "" {
			f["event"] = "unknown"
		}
	}
	if _, ok := f["component"]; !ok {
		f["component"] = "app"
	}
	if s, ok := f["status"].(string); ok {
		f["status"] = strings.ToLower(s)
	}
	if o, ok := f["outcome"].(string); ok {
		o = strings.ToLower(o)
		if _, known := outcomes[o]; known {
			f["outcome"] = o
		} else {
			delete(f, "outcome")
		}
	}
}
