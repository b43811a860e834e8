package survey

// Field type tags. The compiler and the aggregator dispatch on these.
type FieldType string

const (
	FieldEmail     FieldType = "email"
	FieldOption    FieldType = "option"
	FieldRadio     FieldType = "radio"
	FieldSelection FieldType = "selection"
	FieldText      FieldType = "text"
	FieldNumber    FieldType = "number"
)

// Data model limits.
const (
	MaxNameLength  = 32
	MaxShortString = 256
	MaxLongString  = 4096
	MaxFields      = 32
	MaxOptions     = 32
	MaxTimestamp   = 4102444800
)

// Field is a tagged variant: Type selects the constraint block that
// applies, the rest is ignored. A field's 1-based position in the
// configuration is its addressing key in every stored submission.
type Field struct {
	Type        FieldType `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`

	// email
	Hint   string `json:"hint,omitempty"`
	Regex  string `json:"regex,omitempty"`
	Verify bool   `json:"verify,omitempty"`

	// option
	Required bool `json:"required,omitempty"`

	// radio, selection
	Options    []string `json:"options,omitempty"`
	AllowOther bool     `json:"allow_other,omitempty"`
	MinSelect  int      `json:"min_select,omitempty"`
	MaxSelect  int      `json:"max_select,omitempty"`

	// text; both bounds must be present
	MinChars *int `json:"min_chars,omitempty"`
	MaxChars *int `json:"max_chars,omitempty"`

	// number
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}
