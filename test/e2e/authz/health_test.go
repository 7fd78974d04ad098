package authz_test

import (
	"testing"

	"github.com/aussiebroadwan/authz/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

func TestHealthEndpoints(t *testing.T) {
	client := authsdk.NewSDKClient(setupAuthzContainer(t), "", "")

	live, err := client.GetLiveness(t.Context())
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)

	ready, err := client.GetReadiness(t.Context())
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Status)
	require.NotNil(t, ready.Checks)
	require.Equal(t, "ok", ready.Checks.Database)
}

func TestJWKSPublishesSigningKey(t *testing.T) {
	client := authsdk.NewSDKClient(setupAuthzContainer(t), "", "")

	jwks, err := client.GetJWKS(t.Context())
	require.NoError(t, err)
	require.Len(t, jwks.Keys, 1)
	require.Equal(t, "RSA", jwks.Keys[0].Kty)
	require.Equal(t, "RS256", jwks.Keys[0].Alg)
	require.NotEmpty(t, jwks.Keys[0].Kid)
}
