package logging

import (
	"log/slog"
	"strings"
)

type infoField struct {
	label string
	value string
}

// infoHighlightKeys are printed first, in this order.
var infoHighlightKeys = []string{
	FieldAlert,
	FieldEventType,
	"disc_label",
	"disc_title",
	"playlist",
	FieldFile,
	FieldProgressPercent,
	FieldProgressETA,
	FieldBytesFinished,
	FieldBytesTotal,
	"decision",
	"error",
	FieldErrorHint,
	FieldImpact,
	"status",
}

// selectInfoFields formats info-level fields and counts the ones left out.
func selectInfoFields(attrs []kv) ([]infoField, int) {
	used := make([]bool, len(attrs))
	result := make([]infoField, 0, len(attrs))
	hidden := 0

	add := func(idx int) {
		used[idx] = true
		attr := attrs[idx]
		if skipInfoKey(attr.key) {
			return
		}
		if isDebugOnlyKey(attr.key) {
			hidden++
			return
		}
		value := formatValueForKey(attr.key, attr.value)
		if attr.key != "error" && len(value) > 120 {
			hidden++
			return
		}
		result = append(result, infoField{label: displayLabel(attr.key), value: value})
	}

	for _, key := range infoHighlightKeys {
		for idx, attr := range attrs {
			if !used[idx] && attr.key == key {
				add(idx)
				break
			}
		}
	}
	for idx := range attrs {
		if !used[idx] {
			add(idx)
		}
	}
	return result, hidden
}

// formatValueForKey applies formatting based on the key name.
func formatValueForKey(key string, v slog.Value) string {
	v = v.Resolve()
	switch {
	case isByteSizeKey(key) && (v.Kind() == slog.KindInt64 || v.Kind() == slog.KindUint64):
		if v.Kind() == slog.KindInt64 {
			return formatBytes(v.Int64())
		}
		return formatBytes(int64(v.Uint64()))
	case v.Kind() == slog.KindDuration:
		return formatDurationHuman(v.Duration())
	case isPercentKey(key) && v.Kind() == slog.KindFloat64:
		return formatPercent(v.Float64())
	case strings.HasSuffix(key, "_bps") && (v.Kind() == slog.KindInt64 || v.Kind() == slog.KindUint64):
		return formatBitrate(v)
	case v.Kind() == slog.KindBool:
		if v.Bool() {
			return "yes"
		}
		return "no"
	}
	value := formatValue(v)
	if key == "error" && len(value) > 200 {
		value = value[:200] + "…"
	}
	return value
}

func isByteSizeKey(key string) bool {
	return strings.HasSuffix(key, "_bytes") || strings.HasSuffix(key, "_size") || key == "size" ||
		key == FieldBytesFinished || key == FieldBytesTotal
}

func isPercentKey(key string) bool {
	return strings.HasSuffix(key, "_percent")
}

func skipInfoKey(key string) bool {
	switch key {
	case "", FieldComponent, FieldScanID, FieldPhase:
		return true
	}
	return false
}

func isDebugOnlyKey(key string) bool {
	switch key {
	case "pid", "offset", "spn", "pts", "fingerprint", "device", "source":
		return true
	}
	return strings.HasSuffix(key, "_path") || strings.HasSuffix(key, "_dir") || strings.HasSuffix(key, "_pts")
}

func displayLabel(key string) string {
	switch key {
	case FieldAlert:
		return "Alert"
	case FieldEventType:
		return "Event"
	case FieldErrorHint:
		return "Hint"
	case FieldProgressPercent:
		return "Progress"
	case FieldProgressETA:
		return "ETA"
	case FieldBytesFinished:
		return "Scanned"
	case FieldBytesTotal:
		return "Total"
	case "disc_label":
		return "Label"
	case "disc_title":
		return "Disc"
	default:
		return titleizeKey(key)
	}
}

func titleizeKey(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-' || r == '.'
	})
	for i, part := range parts {
		lower := strings.ToLower(part)
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}
