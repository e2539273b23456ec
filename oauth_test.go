package authcore_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estately/authcore"
)

func TestProvisionCreatesFederatedUser(t *testing.T) {
	srv, store := setupServer(t)
	ctx := context.Background()

	session, err := srv.Provisioner.Provision(ctx, authcore.Assertion{
		DisplayName: "Jane Doe",
		Email:       "Jane@Example.com",
		AvatarURL:   "https://example.com/jane.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", session.User.Email)
	assert.Equal(t, "https://example.com/jane.png", session.User.Avatar)
	assert.True(t, strings.HasPrefix(session.User.Username, "janedoe"))
	assert.Len(t, session.User.Username, len("janedoe")+4)

	stored, err := store.FindByID(ctx, session.User.ID)
	require.NoError(t, err)
	assert.Equal(t, authcore.AuthMethodFederated, stored.AuthMethod)
	assert.NotEmpty(t, stored.PasswordHash, "federated accounts get an unusable password")

	// Same email again resolves to the same account
	again, err := srv.Provisioner.Provision(ctx, authcore.Assertion{DisplayName: "Someone Else", Email: "jane@example.com"})
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, again.User.ID)
}

func TestProvisionExistingCredentialUser(t *testing.T) {
	srv, _ := setupServer(t)
	user := signup(t, srv, "jane", "jane@example.com", "Valid123!")

	session, err := srv.Provisioner.Provision(context.Background(), authcore.Assertion{DisplayName: "Jane", Email: "jane@example.com"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.User.ID)
	assert.Equal(t, "jane", session.User.Username)
}

func TestProvisionRequiresEmail(t *testing.T) {
	srv, _ := setupServer(t)
	_, err := srv.Provisioner.Provision(context.Background(), authcore.Assertion{DisplayName: "Jane"})
	assert.Equal(t, authcore.KindValidation, authcore.KindOf(err))
}

func TestProvisionConcurrentSameEmail(t *testing.T) {
	srv, store := setupServer(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session, err := srv.Provisioner.Provision(ctx, authcore.Assertion{DisplayName: "Race Winner", Email: "race@example.com"})
			errs[i] = err
			if err == nil {
				ids[i] = session.User.ID
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "provision %d", i)
	}
	owner, err := store.FindByEmail(ctx, "race@example.com")
	require.NoError(t, err)
	for i, id := range ids {
		assert.Equal(t, owner.ID, id, "provision %d got another account", i)
	}
}

func TestFederatedUsername(t *testing.T) {
	name, err := authcore.FederatedUsername("Jane  Q Doe", "jane@example.com")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "janeqdoe"))
	assert.Len(t, name, len("janeqdoe")+4)

	fallback, err := authcore.FederatedUsername("", "J.Smith@example.com")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(fallback, "j.smith"))

	long, err := authcore.FederatedUsername(strings.Repeat("a", 200), "a@example.com")
	require.NoError(t, err)
	assert.Len(t, long, 64)
}
