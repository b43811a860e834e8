package survey

import (
	"strconv"

	"github.com/ignite/survey-collector/internal/document"
)

// Result is the aggregate of one survey's records: the total record
// count under "count", plus one statistic per counting field keyed by
// the field's 1-based position. Email and text fields carry free-form
// values and produce no statistic.
type Result map[string]any

// Aggregate reduces records into per-field statistics. The result is
// structurally complete even over zero records: every counting field
// appears with zero values. Records that predate a configuration
// update may carry values of the wrong shape; those are skipped, never
// fatal.
func Aggregate(cfg *Configuration, records []document.Doc) Result {
	result := Result{"count": len(records)}
	for i, f := range cfg.Fields {
		key := strconv.Itoa(i + 1)
		switch f.Type {
		case FieldOption:
			result[key] = aggregateOption(records, key)
		case FieldRadio, FieldSelection:
			result[key] = aggregateChoice(f, records, key)
		case FieldNumber:
			result[key] = aggregateNumber(records, key)
		}
	}
	return result
}

// fieldValue pulls one field's submitted value out of a record.
func fieldValue(record document.Doc, key string) (any, bool) {
	data, ok := record["data"].(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := data[key]
	return v, ok
}

func aggregateOption(records []document.Doc, key string) int {
	count := 0
	for _, r := range records {
		v, ok := fieldValue(r, key)
		if !ok {
			continue
		}
		if b, _ := v.(bool); b {
			count++
		}
	}
	return count
}

// aggregateChoice counts per-option selections keyed by option
// position, plus a bucket per distinct free-text entry when the field
// allows them. A record contributes at most once per bucket no matter
// how often its "other" list repeats a value.
func aggregateChoice(f Field, records []document.Doc, key string) map[string]any {
	counts := make([]int, len(f.Options))
	other := map[string]int{}
	for _, r := range records {
		v, ok := fieldValue(r, key)
		if !ok {
			continue
		}
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		for pos, raw := range m {
			if pos == "other" {
				list, ok := raw.([]any)
				if !ok {
					continue
				}
				seen := make(map[string]bool, len(list))
				for _, o := range list {
					s, ok := o.(string)
					if !ok || seen[s] {
						continue
					}
					seen[s] = true
					other[s]++
				}
				continue
			}
			i, err := strconv.Atoi(pos)
			if err != nil || i < 1 || i > len(counts) {
				continue
			}
			if b, _ := raw.(bool); b {
				counts[i-1]++
			}
		}
	}
	out := make(map[string]any, len(counts)+1)
	for i, c := range counts {
		out[strconv.Itoa(i+1)] = c
	}
	if f.AllowOther {
		out["other"] = other
	}
	return out
}

func aggregateNumber(records []document.Doc, key string) map[string]any {
	answered := 0
	var sum, low, high float64
	for _, r := range records {
		v, ok := fieldValue(r, key)
		if !ok {
			continue
		}
		var n float64
		switch x := v.(type) {
		case float64:
			n = x
		case int:
			n = float64(x)
		default:
			continue
		}
		if answered == 0 || n < low {
			low = n
		}
		if answered == 0 || n > high {
			high = n
		}
		answered++
		sum += n
	}
	return map[string]any{"answered": answered, "sum": sum, "min": low, "max": high}
}
