//go:build bedrock

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel/trace"

	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/infra/config"
	"github.com/Travbz/doc-smith/internal/infra/tracer"
)

// bedrockConverseAPI abstracts the Bedrock runtime method for testability.
type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockProvider implements domain.CompletionProvider via the AWS Bedrock
// Converse API. The budget table's model names are passed through as model IDs.
type BedrockProvider struct {
	name   string
	client bedrockConverseAPI
	logger *slog.Logger
}

// NewBedrockProvider creates a Bedrock provider using the default AWS credential chain.
func NewBedrockProvider(cfg config.LLMConfig, logger *slog.Logger) (*BedrockProvider, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newBedrockProviderWithClient(bedrockruntime.NewFromConfig(awsCfg), logger), nil
}

func newBedrockProviderWithClient(client bedrockConverseAPI, logger *slog.Logger) *BedrockProvider {
	return &BedrockProvider{name: "bedrock", client: client, logger: logger}
}

// Complete implements domain.CompletionProvider.
func (p *BedrockProvider) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.complete",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", req.Config.Model),
		),
	)
	defer span.End()

	output, err := p.client.Converse(ctx, toBedrockConverseInput(req))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, mapBedrockError(err)
	}

	result := fromBedrockConverseOutput(output, req.Config.Model)
	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logCompletion(p.logger, p.name, result)

	return result, nil
}

// Name implements domain.CompletionProvider.
func (p *BedrockProvider) Name() string { return p.name }

func toBedrockConverseInput(req domain.CompletionRequest) *bedrockruntime.ConverseInput {
	maxTokens := req.Config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(req.Config.Model),
		Messages: []types.Message{{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: req.Prompt}},
		}},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(maxTokens)),
			Temperature: aws.Float32(float32(req.Config.Temperature)),
		},
	}
	return input
}

func fromBedrockConverseOutput(output *bedrockruntime.ConverseOutput, model string) *domain.Completion {
	result := &domain.Completion{Model: model}
	if output.Usage != nil {
		result.Usage = domain.Usage{
			InputTokens:  int(aws.ToInt32(output.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(output.Usage.OutputTokens)),
		}
	}

	if outMsg, ok := output.Output.(*types.ConverseOutputMemberMessage); ok {
		var sb strings.Builder
		for _, block := range outMsg.Value.Content {
			if b, ok := block.(*types.ContentBlockMemberText); ok {
				sb.WriteString(b.Value)
			}
		}
		result.Text = sb.String()
	}
	return result
}

// mapBedrockError converts AWS error codes into structured completion errors.
func mapBedrockError(err error) error {
	if err == nil {
		return nil
	}

	kind := domain.ErrorKindAPI
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case code == "ThrottlingException" || code == "TooManyRequestsException":
			kind = domain.ErrorKindRateLimit
		case code == "AccessDeniedException" || code == "UnrecognizedClientException":
			kind = domain.ErrorKindAuth
		case code == "ValidationException" && strings.Contains(err.Error(), "too long"):
			kind = domain.ErrorKindTokenLimit
		case code == "ValidationException" || code == "ResourceNotFoundException":
			kind = domain.ErrorKindModel
		}
	}
	return &domain.CompletionError{Kind: kind, Provider: "bedrock", Err: err}
}

var _ domain.CompletionProvider = (*BedrockProvider)(nil)
