package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valorvie/uploadr2/config"
)

func TestNewProviderUnsupported(t *testing.T) {
	_, err := NewProvider(config.StorageConfig{Provider: "ftp"})
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestNewR2ProviderStripsScheme(t *testing.T) {
	cfg := config.StorageConfig{
		Provider:  "r2",
		Endpoint:  "https://abc123.r2.cloudflarestorage.com",
		AccessKey: "ak",
		SecretKey: "sk",
		Bucket:    "images",
	}

	provider, err := NewR2Provider(cfg)
	require.NoError(t, err)
	assert.Equal(t, "abc123.r2.cloudflarestorage.com", provider.client.EndpointURL().Host)
	assert.Equal(t, "https", provider.client.EndpointURL().Scheme)
}

func TestNewProviderR2(t *testing.T) {
	cfg := config.StorageConfig{
		Provider:  "r2",
		Endpoint:  "https://abc123.r2.cloudflarestorage.com",
		AccessKey: "ak",
		SecretKey: "sk",
		Bucket:    "images",
	}

	provider, err := NewProvider(cfg)
	require.NoError(t, err)
	assert.IsType(t, &R2Provider{}, provider)
}
