package unit

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	internalaws "github.com/imrishuroy/go-idempotent-orderflow/internal/awsx"
)

func TestLoadAWSConfig_DefaultRegion(t *testing.T) {
	os.Unsetenv("AWS_ENDPOINT_OVERRIDE")
	os.Setenv("AWS_REGION", "")

	cfg, err := internalaws.LoadAWSConfig(context.Background())
	require.NoError(t, err)
	require.Equal(t, "us-east-1", cfg.Region)
}

func TestLoadAWSConfig_WithEndpointOverride(t *testing.T) {
	os.Setenv("AWS_REGION", "us-east-1")
	os.Setenv("AWS_ENDPOINT_OVERRIDE", "http://localhost:4566")

	cfg, err := internalaws.LoadAWSConfig(context.Background())
	require.NoError(t, err)

	// we can't guarantee exact endpoints here, but we can ensure no error.
	require.Equal(t, "us-east-1", cfg.Region)
}
