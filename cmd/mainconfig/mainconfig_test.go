package mainconfig

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/storefront-ai/internal/config"
)

func TestLoadAWSConfigRequiresConfig(t *testing.T) {
	if _, err := LoadAWSConfig(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestLoadAWSConfigDefaultsRegionAndStaticCredentials(t *testing.T) {
	awsCfg, err := LoadAWSConfig(context.Background(), &appconfig.Config{
		AWSAccessKeyID:     "AKIDTEST",
		AWSSecretAccessKey: "secret",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if awsCfg.Region != defaultRegion {
		t.Fatalf("expected region %s, got %s", defaultRegion, awsCfg.Region)
	}
	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("retrieve credentials: %v", err)
	}
	if creds.AccessKeyID != "AKIDTEST" {
		t.Fatalf("expected static credentials, got %s", creds.AccessKeyID)
	}
}

func TestLoadAWSConfigEndpointOverride(t *testing.T) {
	awsCfg, err := LoadAWSConfig(context.Background(), &appconfig.Config{
		AWSRegion:           "sa-east-1",
		AWSAccessKeyID:      "AKIDTEST",
		AWSSecretAccessKey:  "secret",
		AWSEndpointOverride: "http://localstack:4566",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if awsCfg.EndpointResolverWithOptions == nil {
		t.Fatalf("expected endpoint resolver")
	}
	endpoint, err := awsCfg.EndpointResolverWithOptions.ResolveEndpoint(sqs.ServiceID, "sa-east-1")
	if err != nil {
		t.Fatalf("resolve sqs: %v", err)
	}
	if endpoint.URL != "http://localstack:4566" || endpoint.SigningRegion != "sa-east-1" {
		t.Fatalf("unexpected endpoint %+v", endpoint)
	}
	if _, err := awsCfg.EndpointResolverWithOptions.ResolveEndpoint(dynamodb.ServiceID, "sa-east-1"); err != nil {
		t.Fatalf("resolve dynamodb: %v", err)
	}
	if _, err := awsCfg.EndpointResolverWithOptions.ResolveEndpoint(s3.ServiceID, "sa-east-1"); err != nil {
		t.Fatalf("resolve s3: %v", err)
	}
	if _, err := awsCfg.EndpointResolverWithOptions.ResolveEndpoint("Lambda", "sa-east-1"); err == nil {
		t.Fatalf("expected services outside the override list to fall through")
	}
}
