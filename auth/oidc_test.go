package auth

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/clubchat/config"
	"github.com/tcriess/clubchat/types"
)

func TestIdentifyInsecure(t *testing.T) {
	cfg := &config.Config{AllowInsecureIdentity: true, SuperUsers: []string{"chair@example.com"}}
	ctx := context.Background()

	p, err := Identify(ctx, url.Values{"user": {"player@example.com"}, "nick": {"Sam"}}, cfg)
	require.NoError(t, err)
	assert.Equal(t, types.Participant{Id: "player@example.com", Nick: "Sam", Role: types.RoleMember}, p)

	p, err = Identify(ctx, url.Values{"user": {"chair@example.com"}}, cfg)
	require.NoError(t, err)
	assert.Equal(t, types.RoleSuperAdmin, p.Role)
	assert.NotEmpty(t, p.Nick)

	_, err = Identify(ctx, url.Values{}, cfg)
	assert.Equal(t, types.KindForbidden, types.KindOf(err))
}

func TestIdentifyRequiresToken(t *testing.T) {
	cfg := &config.Config{}
	_, err := Identify(context.Background(), url.Values{"user": {"player@example.com"}}, cfg)
	assert.Equal(t, types.KindForbidden, types.KindOf(err))

	// without a configured provider a token yields no identity
	id, err := Authenticate(context.Background(), "token", "google", cfg)
	require.NoError(t, err)
	assert.Empty(t, id)
}
