// Package ses mirrors successful unsubscribes into the AWS SES account-level
// suppression list so that mail sent through SES also stops.
package ses

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	appconfig "github.com/ignite/mautic-dnc-proxy/internal/config"
)

// SuppressionAPI is the subset of *sesv2.Client the mirror calls.
type SuppressionAPI interface {
	PutSuppressedDestination(ctx context.Context, in *sesv2.PutSuppressedDestinationInput, optFns ...func(*sesv2.Options)) (*sesv2.PutSuppressedDestinationOutput, error)
}

// Mirror writes addresses to the SES suppression list.
type Mirror struct {
	api    SuppressionAPI
	reason types.SuppressionListReason
}

// NewMirror builds an SES v2 client from cfg. Static keys are used when set,
// otherwise the default AWS credential chain applies.
func NewMirror(ctx context.Context, cfg appconfig.SESConfig) (*Mirror, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewMirrorWithAPI(sesv2.NewFromConfig(awsCfg), cfg.Reason)
}

// NewMirrorWithAPI wraps an existing client. reason must be BOUNCE or COMPLAINT.
func NewMirrorWithAPI(api SuppressionAPI, reason string) (*Mirror, error) {
	r, err := parseReason(reason)
	if err != nil {
		return nil, err
	}
	return &Mirror{api: api, reason: r}, nil
}

// SuppressEmail adds email to the account suppression list. SES treats a
// repeated put as an update, so the call is idempotent.
func (m *Mirror) SuppressEmail(ctx context.Context, email string) error {
	_, err := m.api.PutSuppressedDestination(ctx, &sesv2.PutSuppressedDestinationInput{
		EmailAddress: aws.String(email),
		Reason:       m.reason,
	})
	if err != nil {
		return fmt.Errorf("ses put suppressed destination: %w", err)
	}
	return nil
}

func parseReason(s string) (types.SuppressionListReason, error) {
	switch r := types.SuppressionListReason(strings.ToUpper(strings.TrimSpace(s))); r {
	case types.SuppressionListReasonBounce, types.SuppressionListReasonComplaint:
		return r, nil
	case "":
		return types.SuppressionListReasonComplaint, nil
	}
	return "", fmt.Errorf("unknown SES suppression reason %q", s)
}
