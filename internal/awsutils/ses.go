package awsutils

import (
	"context"
	"fmt"
	"math"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"mailbatch/internal/email"
)

type sesInterface interface {
	SendRawEmail(context.Context, *ses.SendRawEmailInput, ...func(*ses.Options)) (*ses.SendRawEmailOutput, error)
	GetSendQuota(context.Context, *ses.GetSendQuotaInput, ...func(*ses.Options)) (*ses.GetSendQuotaOutput, error)
}

type messageBuilder interface {
	Build(msg email.Message) ([]byte, error)
}

type SesEmailClient struct {
	client  sesInterface
	builder messageBuilder
}

func NewSesEmailClient(client *ses.Client) *SesEmailClient {
	return &SesEmailClient{
		client:  client,
		builder: email.NewBuilder(),
	}
}

func NewSesEmailClientFromConfig(cfg aws.Config) *SesEmailClient {
	return NewSesEmailClient(ses.NewFromConfig(cfg))
}

// Send delivers msg to its To address and every Bcc address in one raw send.
func (c *SesEmailClient) Send(ctx context.Context, msg email.Message) error {
	raw, err := c.builder.Build(msg)
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}

	_, err = c.client.SendRawEmail(ctx, &ses.SendRawEmailInput{
		Source:       aws.String(msg.From),
		Destinations: msg.Recipients(),
		RawMessage: &types.RawMessage{
			Data: raw,
		},
	})
	return err
}

// Remaining reports the sends left in the rolling 24 hour SES window.
func (c *SesEmailClient) Remaining(ctx context.Context) (int, error) {
	out, err := c.client.GetSendQuota(ctx, &ses.GetSendQuotaInput{})
	if err != nil {
		return 0, fmt.Errorf("failed to read send quota: %w", err)
	}

	// a negative Max24HourSend means unlimited
	if out.Max24HourSend < 0 {
		return math.MaxInt32, nil
	}

	remaining := int(out.Max24HourSend - out.SentLast24Hours)
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}
