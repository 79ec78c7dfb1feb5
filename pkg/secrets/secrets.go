// Package secrets abstracts retrieval of the database admin password.
//
// Connection creation fetches the admin credential through a Provider; the
// service never stores passwords itself. The AWS Secrets Manager provider is
// used in production, the static provider in tests and local development.
package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// ErrCredentialUnavailable is returned when the admin password cannot be
// retrieved. It is fatal for the connection being created; the caller
// should back off and retry.
var ErrCredentialUnavailable = errors.New("admin credential unavailable")

// Provider fetches the admin password for a database instance.
type Provider interface {
	AdminPassword(ctx context.Context, project, instance, region string) (string, error)
}

// StaticProvider returns a fixed password for every instance.
type StaticProvider struct {
	Password string
}

// AdminPassword implements Provider.
func (p *StaticProvider) AdminPassword(_ context.Context, _, _, _ string) (string, error) {
	if p.Password == "" {
		return "", fmt.Errorf("%w: static provider has no password configured", ErrCredentialUnavailable)
	}
	return p.Password, nil
}

// secretsManagerAPI is the subset of the Secrets Manager client used here.
type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerProvider fetches admin passwords from AWS Secrets Manager
// under the name {prefix}/{project}/{region}/{instance}.
type SecretsManagerProvider struct {
	client secretsManagerAPI
	prefix string
}

// NewSecretsManagerProvider builds a provider using the default AWS
// configuration chain.
func NewSecretsManagerProvider(ctx context.Context, prefix string) (*SecretsManagerProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return &SecretsManagerProvider{
		client: secretsmanager.NewFromConfig(cfg),
		prefix: prefix,
	}, nil
}

// NewSecretsManagerProviderWithClient builds a provider with an injected
// client, for tests.
func NewSecretsManagerProviderWithClient(client secretsManagerAPI, prefix string) *SecretsManagerProvider {
	return &SecretsManagerProvider{client: client, prefix: prefix}
}

// AdminPassword implements Provider.
func (p *SecretsManagerProvider) AdminPassword(ctx context.Context, project, instance, region string) (string, error) {
	name := fmt.Sprintf("%s/%s/%s/%s", p.prefix, project, region, instance)

	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrCredentialUnavailable, name, err)
	}
	if out.SecretString == nil || *out.SecretString == "" {
		return "", fmt.Errorf("%w: %s has no string value", ErrCredentialUnavailable, name)
	}
	return *out.SecretString, nil
}
