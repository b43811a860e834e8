package survey

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(v int) *int             { return &v }
func int64p(v int64) *int64       { return &v }
func float64p(v float64) *float64 { return &v }

func validConfiguration() *Configuration {
	return &Configuration{
		Name:           "customer-pulse",
		Title:          "Customer pulse",
		Description:    "How did we do this quarter?",
		Start:          int64p(1000),
		End:            int64p(2000),
		Authentication: AuthenticationOpen,
		Fields: []Field{
			{Type: FieldText, Title: "Anything else?", MinChars: intp(0), MaxChars: intp(400)},
		},
	}
}

func emailConfiguration() *Configuration {
	cfg := validConfiguration()
	cfg.Authentication = AuthenticationEmail
	cfg.Fields = []Field{
		{Type: FieldEmail, Title: "Work email", Verify: true},
		{Type: FieldText, Title: "Feedback", MinChars: intp(0), MaxChars: intp(400)},
	}
	return cfg
}

func TestConfigurationValidate(t *testing.T) {
	require.NoError(t, validConfiguration().Validate())
	require.NoError(t, emailConfiguration().Validate())
}

func TestConfigurationValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Configuration)
	}{
		{"empty name", func(c *Configuration) { c.Name = "" }},
		{"uppercase name", func(c *Configuration) { c.Name = "Customer-Pulse" }},
		{"dotted name", func(c *Configuration) { c.Name = "customer.pulse" }},
		{"name too long", func(c *Configuration) { c.Name = strings.Repeat("a", 33) }},
		{"empty title", func(c *Configuration) { c.Title = "" }},
		{"title too long", func(c *Configuration) { c.Title = strings.Repeat("x", 257) }},
		{"description too long", func(c *Configuration) { c.Description = strings.Repeat("x", 4097) }},
		{"negative start", func(c *Configuration) { c.Start = int64p(-1) }},
		{"start beyond horizon", func(c *Configuration) { c.Start = int64p(4102444801) }},
		{"end before start", func(c *Configuration) { c.Start = int64p(2000); c.End = int64p(1000) }},
		{"unknown authentication", func(c *Configuration) { c.Authentication = "magic" }},
		{"no fields", func(c *Configuration) { c.Fields = nil }},
		{"too many fields", func(c *Configuration) {
			c.Fields = make([]Field, 33)
			for i := range c.Fields {
				c.Fields[i] = Field{Type: FieldOption, Title: "Yes?"}
			}
		}},
		{"field without title", func(c *Configuration) { c.Fields[0].Title = "" }},
		{"unknown field type", func(c *Configuration) { c.Fields[0].Type = "slider" }},
		{"radio without options", func(c *Configuration) {
			c.Fields = []Field{{Type: FieldRadio, Title: "Pick one"}}
		}},
		{"radio with too many options", func(c *Configuration) {
			opts := make([]string, 33)
			for i := range opts {
				opts[i] = strings.Repeat("o", i+1)
			}
			c.Fields = []Field{{Type: FieldRadio, Title: "Pick one", Options: opts}}
		}},
		{"duplicate options", func(c *Configuration) {
			c.Fields = []Field{{Type: FieldRadio, Title: "Pick one", Options: []string{"red", "red"}}}
		}},
		{"empty option", func(c *Configuration) {
			c.Fields = []Field{{Type: FieldRadio, Title: "Pick one", Options: []string{"red", ""}}}
		}},
		{"selection max below min", func(c *Configuration) {
			c.Fields = []Field{{Type: FieldSelection, Title: "Pick some", Options: []string{"a", "b"}, MinSelect: 2, MaxSelect: 1}}
		}},
		{"selection max zero", func(c *Configuration) {
			c.Fields = []Field{{Type: FieldSelection, Title: "Pick some", Options: []string{"a", "b"}}}
		}},
		{"selection max beyond options", func(c *Configuration) {
			c.Fields = []Field{{Type: FieldSelection, Title: "Pick some", Options: []string{"a", "b"}, MinSelect: 1, MaxSelect: 3}}
		}},
		{"text bounds inverted", func(c *Configuration) {
			c.Fields = []Field{{Type: FieldText, Title: "Say more", MinChars: intp(10), MaxChars: intp(5)}}
		}},
		{"text without min_chars", func(c *Configuration) {
			c.Fields = []Field{{Type: FieldText, Title: "Say more", MaxChars: intp(400)}}
		}},
		{"text without max_chars", func(c *Configuration) {
			c.Fields = []Field{{Type: FieldText, Title: "Say more", MinChars: intp(0)}}
		}},
		{"text max beyond limit", func(c *Configuration) {
			c.Fields = []Field{{Type: FieldText, Title: "Say more", MinChars: intp(0), MaxChars: intp(4097)}}
		}},
		{"email regex does not compile", func(c *Configuration) {
			c.Fields = []Field{{Type: FieldEmail, Title: "Email", Regex: "("}}
		}},
		{"email hint too long", func(c *Configuration) {
			c.Fields = []Field{{Type: FieldEmail, Title: "Email", Hint: strings.Repeat("h", 257)}}
		}},
		{"number bounds inverted", func(c *Configuration) {
			c.Fields = []Field{{Type: FieldNumber, Title: "How many?", Min: float64p(10), Max: float64p(1)}}
		}},
		{"email authentication without verify field", func(c *Configuration) {
			c.Authentication = AuthenticationEmail
		}},
		{"two verify fields", func(c *Configuration) {
			c.Fields = []Field{
				{Type: FieldEmail, Title: "Email", Verify: true},
				{Type: FieldEmail, Title: "Backup email", Verify: true},
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfiguration()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfiguration)
		})
	}
}

func TestConfigurationAllowOtherLoosensMaxSelect(t *testing.T) {
	cfg := validConfiguration()
	cfg.Fields = []Field{{
		Type:       FieldSelection,
		Title:      "Pick some",
		Options:    []string{"a", "b"},
		AllowOther: true,
		MinSelect:  1,
		MaxSelect:  4,
	}}
	require.NoError(t, cfg.Validate())
}

func TestConfigurationUnboundedWindow(t *testing.T) {
	cfg := validConfiguration()
	cfg.Start = nil
	cfg.End = nil
	require.NoError(t, cfg.Validate())
}

func TestValidName(t *testing.T) {
	assert.True(t, ValidName("customer-pulse"))
	assert.True(t, ValidName("a"))
	assert.False(t, ValidName(""))
	assert.False(t, ValidName("Customer"))
	assert.False(t, ValidName("a b"))
	assert.False(t, ValidName("a.b"))
	assert.False(t, ValidName(strings.Repeat("a", 33)))
}

func TestEmailFieldIndex(t *testing.T) {
	assert.Equal(t, -1, validConfiguration().EmailFieldIndex())
	assert.Equal(t, 0, emailConfiguration().EmailFieldIndex())

	cfg := emailConfiguration()
	cfg.Fields = []Field{
		{Type: FieldText, Title: "Feedback", MinChars: intp(0), MaxChars: intp(400)},
		{Type: FieldEmail, Title: "Work email", Verify: true},
	}
	assert.Equal(t, 1, cfg.EmailFieldIndex())
}

func TestConfigurationDocRoundTrip(t *testing.T) {
	cfg := emailConfiguration()
	doc, err := configurationDoc("acme", cfg)
	require.NoError(t, err)
	assert.Equal(t, "acme.customer-pulse", doc.ID())

	got, err := configurationFromDoc(doc)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}
