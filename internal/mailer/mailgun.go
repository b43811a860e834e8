package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ignite/survey-collector/internal/config"
	"github.com/ignite/survey-collector/internal/pkg/httpretry"
	"github.com/ignite/survey-collector/internal/pkg/logger"
	"github.com/ignite/survey-collector/internal/survey"
)

// Mailgun delivers verification mail through the Mailgun messages API.
type Mailgun struct {
	baseURL    string
	domain     string
	apiKey     string
	sender     string
	frontend   string
	templates  *Templates
	httpClient httpretry.HTTPDoer
	log        zerolog.Logger
}

// NewMailgun creates a Mailgun mailer.
func NewMailgun(cfg config.MailgunConfig, sender, frontend string, log zerolog.Logger) *Mailgun {
	return &Mailgun{
		baseURL:   cfg.BaseURL,
		domain:    cfg.Domain,
		apiKey:    cfg.APIKey,
		sender:    sender,
		frontend:  frontend,
		templates: NewTemplates(),
		httpClient: httpretry.New(&http.Client{
			Timeout: cfg.Timeout(),
		}, 3, log),
		log: log,
	}
}

// SendVerification posts one message to the domain's messages endpoint
// and reports the upstream status code.
func (c *Mailgun) SendVerification(ctx context.Context, v survey.Verification) (int, error) {
	subject, body, err := renderVerification(c.templates, c.frontend, v)
	if err != nil {
		return 0, err
	}

	form := url.Values{}
	form.Set("from", c.sender)
	form.Set("to", v.To)
	form.Set("subject", subject)
	form.Set("html", body)

	endpoint := fmt.Sprintf("%s/v3/%s/messages", c.baseURL, c.domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}

	// Mailgun uses Basic Auth with "api" as username
	req.SetBasicAuth("api", c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		c.log.Error().
			Int("status", resp.StatusCode).
			Str("to", logger.RedactEmail(v.To)).
			Str("response", string(respBody)).
			Msg("mailer: mailgun send rejected")
		return resp.StatusCode, nil
	}

	var parsed struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err == nil {
		c.log.Info().
			Str("to", logger.RedactEmail(v.To)).
			Str("message_id", parsed.ID).
			Msg("mailer: mailgun send accepted")
	}

	return resp.StatusCode, nil
}
