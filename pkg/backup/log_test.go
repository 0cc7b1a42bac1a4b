package backup

import (
	"context"
	"log/slog"
	"slices"
)

// logRecord is a flattened slog record, attribute values are formatted
// with slog.Value.String
type logRecord struct {
	Level slog.Level
	Msg   string
	Attrs map[string]string
}

// recordHandler collects every log record including attributes added
// via Logger.With
type recordHandler struct {
	records *[]logRecord
	attrs   []slog.Attr
}

func newRecordLogger() (*slog.Logger, *[]logRecord) {
	records := &[]logRecord{}
	return slog.New(&recordHandler{records: records}), records
}

func (h *recordHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordHandler) Handle(_ context.Context, r slog.Record) error {
	rec := logRecord{Level: r.Level, Msg: r.Message, Attrs: map[string]string{}}
	for _, a := range h.attrs {
		rec.Attrs[a.Key] = a.Value.String()
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.Attrs[a.Key] = a.Value.String()
		return true
	})
	*h.records = append(*h.records, rec)
	return nil
}

func (h *recordHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &recordHandler{records: h.records, attrs: append(slices.Clone(h.attrs), attrs...)}
}

func (h *recordHandler) WithGroup(string) slog.Handler { return h }

// recordsAt returns records logged at given level
func recordsAt(records []logRecord, level slog.Level) []logRecord {
	var found []logRecord
	for _, r := range records {
		if r.Level == level {
			found = append(found, r)
		}
	}
	return found
}

// pick returns only given attributes of the record, missing ones are omitted
func (r logRecord) pick(keys ...string) map[string]string {
	picked := map[string]string{}
	for _, k := range keys {
		if v, ok := r.Attrs[k]; ok {
			picked[k] = v
		}
	}
	return picked
}
