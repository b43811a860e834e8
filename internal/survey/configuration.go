package survey

import (
	"encoding/json"
	"regexp"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/ignite/survey-collector/internal/document"
)

// Authentication modes.
const (
	AuthenticationOpen       = "open"
	AuthenticationEmail      = "email"
	AuthenticationInvitation = "invitation"
)

var (
	namePattern  = regexp.MustCompile(`^[a-z0-9-]{1,32}$`)
	emailPattern = regexp.MustCompile(`^.+@.+$`)
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	if err := validate.RegisterValidation("identifier", validIdentifier); err != nil {
		panic(err)
	}
	validate.RegisterStructValidation(validateConfiguration, Configuration{})
	validate.RegisterStructValidation(validateField, Field{})
}

func validIdentifier(fl validator.FieldLevel) bool {
	return namePattern.MatchString(fl.Field().String())
}

// ValidName reports whether s is a well-formed owner or survey name.
func ValidName(s string) bool { return namePattern.MatchString(s) }

// Configuration describes one survey: its identity, submission window,
// authentication mode and ordered field list.
type Configuration struct {
	Name           string  `json:"survey_name" validate:"required,identifier"`
	Title          string  `json:"title" validate:"required,max=256"`
	Description    string  `json:"description,omitempty" validate:"max=4096"`
	Start          *int64  `json:"start,omitempty" validate:"omitempty,gte=0,lte=4102444800"`
	End            *int64  `json:"end,omitempty" validate:"omitempty,gte=0,lte=4102444800"`
	Draft          bool    `json:"draft"`
	Authentication string  `json:"authentication" validate:"required,oneof=open email invitation"`
	Fields         []Field `json:"fields" validate:"required,min=1,max=32,dive"`
}

// Validate checks every structural invariant of the configuration. A
// configuration that fails here must never reach the store or cache.
func (c *Configuration) Validate() error {
	if err := validate.Struct(c); err != nil {
		return ErrInvalidConfiguration
	}
	return nil
}

func validateConfiguration(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(Configuration)

	if cfg.Start != nil && cfg.End != nil && *cfg.End < *cfg.Start {
		sl.ReportError(cfg.End, "End", "end", "window", "")
	}

	verifying := 0
	for _, f := range cfg.Fields {
		if f.Type == FieldEmail && f.Verify {
			verifying++
		}
	}
	if verifying > 1 {
		sl.ReportError(cfg.Fields, "Fields", "fields", "verify", "")
	}
	if cfg.Authentication == AuthenticationEmail && verifying != 1 {
		sl.ReportError(cfg.Fields, "Fields", "fields", "verify", "")
	}
}

func validateField(sl validator.StructLevel) {
	f := sl.Current().Interface().(Field)

	if n := utf8.RuneCountInString(f.Title); n < 1 || n > MaxShortString {
		sl.ReportError(f.Title, "Title", "title", "length", "")
	}
	if utf8.RuneCountInString(f.Description) > MaxLongString {
		sl.ReportError(f.Description, "Description", "description", "length", "")
	}

	switch f.Type {
	case FieldEmail:
		if utf8.RuneCountInString(f.Hint) > MaxShortString {
			sl.ReportError(f.Hint, "Hint", "hint", "length", "")
		}
		if utf8.RuneCountInString(f.Regex) > MaxShortString {
			sl.ReportError(f.Regex, "Regex", "regex", "length", "")
		}
		if f.Regex != "" {
			if _, err := regexp.Compile(f.Regex); err != nil {
				sl.ReportError(f.Regex, "Regex", "regex", "compile", "")
			}
		}
	case FieldOption:
	case FieldRadio:
		validateOptions(sl, f)
	case FieldSelection:
		validateOptions(sl, f)
		if f.MinSelect < 0 || f.MaxSelect < 1 || f.MaxSelect < f.MinSelect {
			sl.ReportError(f.MaxSelect, "MaxSelect", "max_select", "range", "")
		}
		if !f.AllowOther && f.MaxSelect > len(f.Options) {
			sl.ReportError(f.MaxSelect, "MaxSelect", "max_select", "range", "")
		}
	case FieldText:
		// A text field without bounds would compile to a constraint
		// accepting only the empty string, so both are mandatory.
		if f.MinChars == nil || f.MaxChars == nil {
			sl.ReportError(f.MaxChars, "MaxChars", "max_chars", "required", "")
		} else if *f.MinChars < 0 || *f.MaxChars > MaxLongString || *f.MaxChars < *f.MinChars {
			sl.ReportError(f.MaxChars, "MaxChars", "max_chars", "range", "")
		}
	case FieldNumber:
		if f.Min != nil && f.Max != nil && *f.Max < *f.Min {
			sl.ReportError(f.Max, "Max", "max", "range", "")
		}
	default:
		sl.ReportError(f.Type, "Type", "type", "oneof", "")
	}
}

func validateOptions(sl validator.StructLevel, f Field) {
	if len(f.Options) < 1 || len(f.Options) > MaxOptions {
		sl.ReportError(f.Options, "Options", "options", "length", "")
		return
	}
	seen := make(map[string]bool, len(f.Options))
	for _, o := range f.Options {
		if n := utf8.RuneCountInString(o); n < 1 || n > MaxShortString {
			sl.ReportError(f.Options, "Options", "options", "length", "")
		}
		if seen[o] {
			sl.ReportError(f.Options, "Options", "options", "unique", "")
		}
		seen[o] = true
	}
}

// EmailFieldIndex returns the 0-based index of the verifying email
// field, or -1 when the configuration has none.
func (c *Configuration) EmailFieldIndex() int {
	for i, f := range c.Fields {
		if f.Type == FieldEmail && f.Verify {
			return i
		}
	}
	return -1
}

// configurationDoc flattens a configuration into a store document
// keyed by the survey's identity.
func configurationDoc(owner string, cfg *Configuration) (document.Doc, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var doc document.Doc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	doc["_id"] = Key(owner, cfg.Name)
	return doc, nil
}

// configurationFromDoc rebuilds a configuration from its stored form.
func configurationFromDoc(doc document.Doc) (*Configuration, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var cfg Configuration
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
