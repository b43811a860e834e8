package mailer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/survey-collector/internal/pkg/logger"
	"github.com/ignite/survey-collector/internal/survey"
)

// Verification mail templates. Liquid, so deployments can swap them
// out without touching the send path.
const (
	verificationSubject = `Confirm your "{{ title | default: "survey" }}" submission`

	verificationBody = `<html>
<body>
<p>Hi,</p>
<p>This address was entered in the survey "{{ title }}". Follow the link below to confirm the submission.</p>
<p><a href="{{ link }}">Confirm my submission</a></p>
<p>If that was not you, ignore this mail. Unconfirmed submissions are never counted.</p>
</body>
</html>`
)

// Templates renders mail parts from Liquid sources. Parsed templates
// are cached by name, so repeated sends skip the parse.
type Templates struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewTemplates creates a template renderer with the custom filters the
// mail templates rely on.
func NewTemplates() *Templates {
	engine := liquid.NewEngine()

	// Fallback value: {{ title | default: "survey" }}
	engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		strVal := fmt.Sprintf("%v", value)
		if strVal == "" || strVal == "<nil>" {
			return defaultVal
		}
		return value
	})

	// Mask an address for display: {{ to | mask_email }}
	engine.RegisterFilter("mask_email", func(email string) string {
		return logger.RedactEmail(email)
	})

	return &Templates{engine: engine}
}

// Render processes one named template with the given context.
func (t *Templates) Render(name, source string, ctx map[string]any) (string, error) {
	if cached, ok := t.cache.Load(name); ok {
		return cached.(*liquid.Template).RenderString(ctx)
	}

	tpl, err := t.engine.ParseString(source)
	if err != nil {
		return "", fmt.Errorf("parsing template %s: %w", name, err)
	}
	t.cache.Store(name, tpl)

	return tpl.RenderString(ctx)
}

// verificationLink builds the frontend URL the recipient lands on.
func verificationLink(frontend string, v survey.Verification) string {
	return fmt.Sprintf("%s/%s/%s/verification/%s",
		strings.TrimRight(frontend, "/"), v.Owner, v.Survey, v.Token)
}

// renderVerification renders the subject and HTML body for one
// verification mail.
func renderVerification(t *Templates, frontend string, v survey.Verification) (string, string, error) {
	ctx := map[string]any{
		"title":  v.Title,
		"owner":  v.Owner,
		"survey": v.Survey,
		"to":     v.To,
		"link":   verificationLink(frontend, v),
	}

	subject, err := t.Render("verification-subject", verificationSubject, ctx)
	if err != nil {
		return "", "", err
	}
	body, err := t.Render("verification-body", verificationBody, ctx)
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}
