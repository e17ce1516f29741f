package ssh

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostbridge/hostbridge/internal/core/domain"
	"github.com/hostbridge/hostbridge/internal/shell/provider"
)

func bundle(fields map[string]string) domain.CredentialBundle {
	return domain.CredentialBundle{ProviderID: "shared_hosting", Fields: fields}
}

func TestAuthMethods_PasswordOnly(t *testing.T) {
	methods, err := authMethods(bundle(map[string]string{provider.CredPassword: "pw"}))
	require.NoError(t, err)
	assert.Len(t, methods, 1)
}

func TestAuthMethods_NoSecrets(t *testing.T) {
	_, err := authMethods(bundle(nil))
	require.Error(t, err)
	assert.Equal(t, domain.CategoryAuthFailure, domain.CategoryOf(err))
}

func TestAuthMethods_BadPrivateKey(t *testing.T) {
	_, err := authMethods(bundle(map[string]string{provider.CredKeyPEM: "not a pem"}))
	require.Error(t, err)
	assert.Equal(t, domain.CategoryAuthFailure, domain.CategoryOf(err))
}

func TestDial_MissingHost(t *testing.T) {
	dialer := NewDialer(DefaultConfig())

	_, err := dialer(context.Background(), bundle(map[string]string{provider.CredPassword: "pw"}))
	require.Error(t, err)
	assert.Equal(t, domain.CategoryAuthFailure, domain.CategoryOf(err))
}

func TestDial_Cancelled(t *testing.T) {
	dialer := NewDialer(Config{ConnectTimeout: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// 192.0.2.0/24 is reserved for documentation; nothing answers there.
	_, err := dialer(ctx, bundle(map[string]string{
		provider.CredHost:     "192.0.2.1",
		provider.CredUsername: "deploy",
		provider.CredPassword: "pw",
	}))
	require.Error(t, err)
	assert.Equal(t, domain.CategoryConnectivity, domain.CategoryOf(err))
}

func TestClassifyDial_AuthVsConnectivity(t *testing.T) {
	authErr := classifyDial("h:22", errors.New("ssh: unable to authenticate, attempted methods [password]"))
	assert.Equal(t, domain.CategoryAuthFailure, domain.CategoryOf(authErr))

	connErr := classifyDial("h:22", errors.New("dial tcp: connection refused"))
	assert.Equal(t, domain.CategoryConnectivity, domain.CategoryOf(connErr))
}
