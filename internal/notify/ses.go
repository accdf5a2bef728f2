package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESConfig configures SESNotifier.
type SESConfig struct {
	Region string `yaml:"region"`
	From   string `yaml:"from"`
}

// sesAPI is the part of the SES v2 client the notifier uses.
type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESNotifier sends events as plain-text email through Amazon SES.
type SESNotifier struct {
	client sesAPI
	from   string
}

// NewSESNotifier loads AWS credentials from the default chain.
func NewSESNotifier(ctx context.Context, cfg SESConfig) (*SESNotifier, error) {
	if cfg.From == "" {
		return nil, fmt.Errorf("ses from address required")
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return &SESNotifier{client: sesv2.NewFromConfig(awsCfg), from: cfg.From}, nil
}

// Notify implements Notifier.
func (n *SESNotifier) Notify(ctx context.Context, e Event) error {
	if e.To == "" {
		return fmt.Errorf("no recipient")
	}
	subject, body := Render(e)

	_, err := n.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.from),
		Destination:      &types.Destination{ToAddresses: []string{e.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("sending email via ses: %w", err)
	}
	return nil
}
