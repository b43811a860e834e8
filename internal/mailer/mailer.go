// Package mailer delivers survey verification email.
package mailer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/ignite/survey-collector/internal/config"
	"github.com/ignite/survey-collector/internal/pkg/logger"
	"github.com/ignite/survey-collector/internal/survey"
)

// New builds the mailer selected by the configured provider.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (survey.Mailer, error) {
	switch cfg.Mailer.Provider {
	case "ses":
		return NewSES(ctx, cfg.SES, cfg.Mailer.Sender, cfg.Survey.FrontendURL, log)
	case "mailgun":
		return NewMailgun(cfg.Mailgun, cfg.Mailer.Sender, cfg.Survey.FrontendURL, log), nil
	case "", "noop":
		return NewNoop(log), nil
	default:
		return nil, fmt.Errorf("unknown mailer provider: %s", cfg.Mailer.Provider)
	}
}

// Noop logs the verification instead of sending it, for local
// development without mail credentials. It reports success so email
// surveys stay usable end to end.
type Noop struct {
	log zerolog.Logger
}

// NewNoop creates a mailer that only logs.
func NewNoop(log zerolog.Logger) *Noop {
	return &Noop{log: log}
}

// SendVerification logs the would-be delivery and reports success.
func (n *Noop) SendVerification(_ context.Context, v survey.Verification) (int, error) {
	n.log.Info().
		Str("to", logger.RedactEmail(v.To)).
		Str("survey", survey.Key(v.Owner, v.Survey)).
		Str("token", v.Token).
		Msg("mailer: delivery suppressed, noop provider")
	return http.StatusOK, nil
}
