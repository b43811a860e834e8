package survey

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"unicode/utf8"
)

// constraint reports whether one submitted value is acceptable for the
// field it was compiled from.
type constraint func(value any) bool

// compilers maps each field type tag to its constraint compiler. The
// table is total over the supported tags.
var compilers = map[FieldType]func(Field) (constraint, error){
	FieldEmail:     compileEmail,
	FieldOption:    compileOption,
	FieldRadio:     compileRadio,
	FieldSelection: compileSelection,
	FieldText:      compileText,
	FieldNumber:    compileNumber,
}

// Schema validates submission payloads against one survey's field
// list. Payload keys are the 1-based field positions as decimal
// strings; a conforming payload carries exactly those keys.
type Schema struct {
	constraints map[string]constraint
}

// Compile turns a validated configuration into an executable schema.
// It is deterministic: the same configuration always compiles to a
// schema accepting the same payloads.
func Compile(cfg *Configuration) (*Schema, error) {
	constraints := make(map[string]constraint, len(cfg.Fields))
	for i, f := range cfg.Fields {
		compile, ok := compilers[f.Type]
		if !ok {
			return nil, fmt.Errorf("compile schema: unknown field type %q", f.Type)
		}
		c, err := compile(f)
		if err != nil {
			return nil, fmt.Errorf("compile schema: field %d: %w", i+1, err)
		}
		constraints[strconv.Itoa(i+1)] = c
	}
	return &Schema{constraints: constraints}, nil
}

// Validate reports whether payload conforms to the schema.
func (s *Schema) Validate(payload map[string]any) bool {
	if len(payload) != len(s.constraints) {
		return false
	}
	for key, c := range s.constraints {
		value, ok := payload[key]
		if !ok || !c(value) {
			return false
		}
	}
	return true
}

func compileEmail(f Field) (constraint, error) {
	var extra *regexp.Regexp
	if f.Regex != "" {
		re, err := regexp.Compile(f.Regex)
		if err != nil {
			return nil, err
		}
		extra = re
	}
	return func(v any) bool {
		s, ok := v.(string)
		if !ok || utf8.RuneCountInString(s) > MaxShortString {
			return false
		}
		if !emailPattern.MatchString(s) {
			return false
		}
		if extra != nil && !extra.MatchString(s) {
			return false
		}
		return true
	}, nil
}

func compileOption(f Field) (constraint, error) {
	return func(v any) bool {
		b, ok := v.(bool)
		if !ok {
			return false
		}
		return b || !f.Required
	}, nil
}

func compileRadio(f Field) (constraint, error) {
	return compileChoice(f, 1, 1), nil
}

func compileSelection(f Field) (constraint, error) {
	return compileChoice(f, f.MinSelect, f.MaxSelect), nil
}

// compileChoice builds the shared radio and selection constraint. A
// choice value is a map from option position to bool, plus an "other"
// list of free-text entries when the field allows them. Duplicate
// free-text entries collapse before they count toward the selection
// arithmetic.
func compileChoice(f Field, minSelect, maxSelect int) constraint {
	n := len(f.Options)
	return func(v any) bool {
		m, ok := v.(map[string]any)
		if !ok {
			return false
		}
		selected := 0
		for key, raw := range m {
			if key == "other" {
				if !f.AllowOther {
					return false
				}
				others, ok := distinctOthers(raw)
				if !ok {
					return false
				}
				selected += others
				continue
			}
			pos, err := strconv.Atoi(key)
			if err != nil || pos < 1 || pos > n || strconv.Itoa(pos) != key {
				return false
			}
			b, ok := raw.(bool)
			if !ok {
				return false
			}
			if b {
				selected++
			}
		}
		return selected >= minSelect && selected <= maxSelect
	}
}

// distinctOthers counts the distinct well-formed free-text entries in
// a choice value's "other" list.
func distinctOthers(raw any) (int, bool) {
	list, ok := raw.([]any)
	if !ok {
		return 0, false
	}
	seen := make(map[string]bool, len(list))
	for _, o := range list {
		s, ok := o.(string)
		if !ok {
			return 0, false
		}
		if n := utf8.RuneCountInString(s); n < 1 || n > MaxShortString {
			return 0, false
		}
		seen[s] = true
	}
	return len(seen), true
}

func compileText(f Field) (constraint, error) {
	if f.MinChars == nil || f.MaxChars == nil {
		return nil, errors.New("text field requires min_chars and max_chars")
	}
	lo, hi := *f.MinChars, *f.MaxChars
	return func(v any) bool {
		s, ok := v.(string)
		if !ok {
			return false
		}
		n := utf8.RuneCountInString(s)
		return n >= lo && n <= hi
	}, nil
}

func compileNumber(f Field) (constraint, error) {
	return func(v any) bool {
		var n float64
		switch x := v.(type) {
		case float64:
			n = x
		case int:
			n = float64(x)
		default:
			return false
		}
		if f.Min != nil && n < *f.Min {
			return false
		}
		if f.Max != nil && n > *f.Max {
			return false
		}
		return true
	}, nil
}
