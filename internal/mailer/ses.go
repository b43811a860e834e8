package mailer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/rs/zerolog"

	"github.com/ignite/survey-collector/internal/config"
	"github.com/ignite/survey-collector/internal/pkg/logger"
	"github.com/ignite/survey-collector/internal/survey"
)

// SES delivers verification mail through AWS SES v2.
type SES struct {
	client    *sesv2.Client
	sender    string
	frontend  string
	templates *Templates
	log       zerolog.Logger
}

// NewSES creates an SES mailer with static credentials.
func NewSES(ctx context.Context, cfg config.SESConfig, sender, frontend string, log zerolog.Logger) (*SES, error) {
	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &SES{
		client:    sesv2.NewFromConfig(awsCfg),
		sender:    sender,
		frontend:  frontend,
		templates: NewTemplates(),
		log:       log,
	}, nil
}

// SendVerification sends one verification mail and reports the
// delivery status.
func (s *SES) SendVerification(ctx context.Context, v survey.Verification) (int, error) {
	subject, body, err := renderVerification(s.templates, s.frontend, v)
	if err != nil {
		return 0, err
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.sender),
		Destination:      &types.Destination{ToAddresses: []string{v.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
				},
			},
		},
		// Tag values may only carry [a-zA-Z0-9_-], which the identifier
		// grammar guarantees for each part but not for the joined key.
		EmailTags: []types.MessageTag{
			{Name: aws.String("owner"), Value: aws.String(v.Owner)},
			{Name: aws.String("survey"), Value: aws.String(v.Survey)},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.log.Error().Err(err).
			Str("to", logger.RedactEmail(v.To)).
			Msg("mailer: ses send failed")
		return 0, err
	}

	messageID := ""
	if result.MessageId != nil {
		messageID = *result.MessageId
	}
	s.log.Info().
		Str("to", logger.RedactEmail(v.To)).
		Str("message_id", messageID).
		Msg("mailer: ses send accepted")

	return http.StatusOK, nil
}
