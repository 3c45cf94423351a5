package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/folkengine/goname"
	"github.com/tcriess/clubchat/config"
	"github.com/tcriess/clubchat/globals"
	"github.com/tcriess/clubchat/types"
)

// Authenticate verifies a given OIDC ID-Token using the configured OIDC provider.
// It returns the participant id if verification was successful (or an empty string if no provider was configured).
// The id is the "email" claim of the token, so it must be unique across the user base.
func Authenticate(ctx context.Context, idToken, oidcProvider string, cfg *config.Config) (string, error) {
	if idToken == "" || len(cfg.OIDCConfigs) == 0 {
		return "", nil
	}
	var oidcConf *config.OIDCConfig
	for i := range cfg.OIDCConfigs {
		if cfg.OIDCConfigs[i].Name == oidcProvider {
			oidcConf = &cfg.OIDCConfigs[i]
			break
		}
	}
	if oidcConf == nil {
		globals.AppLogger.Debug("no oidc config found for provider", "provider", oidcProvider)
		return "", nil
	}
	provider, err := oidc.NewProvider(ctx, oidcConf.ProviderUrl)
	if err != nil {
		return "", err
	}
	conf := oidc.Config{}
	if oidcConf.ClientId == "" {
		conf.SkipClientIDCheck = true
	} else {
		conf.ClientID = oidcConf.ClientId
	}
	verifier := provider.Verifier(&conf)
	verifiedIdToken, err := verifier.Verify(ctx, idToken)
	if err != nil {
		return "", err
	}

	claims := struct {
		Email string `json:"email"`
	}{}
	err = verifiedIdToken.Claims(&claims)
	if err != nil {
		return "", err
	}
	return claims.Email, nil
}

// Identify determines the participant of a request from its query parameters: "id_token" and
// "provider" for OIDC, or "user" if insecure identities are allowed. "nick" sets the display name,
// anonymous participants get a random one. Configured super users get the super role.
func Identify(ctx context.Context, vals url.Values, cfg *config.Config) (types.Participant, error) {
	id := ""
	if idToken := vals.Get("id_token"); idToken != "" {
		var err error
		id, err = Authenticate(ctx, idToken, vals.Get("provider"), cfg)
		if err != nil {
			return types.Participant{}, fmt.Errorf("%w: %s", types.ErrForbidden, err)
		}
	}
	if id == "" && cfg.AllowInsecureIdentity {
		id = strings.TrimSpace(vals.Get("user"))
	}
	if id == "" {
		return types.Participant{}, fmt.Errorf("%w: no identity", types.ErrForbidden)
	}
	nick := strings.TrimSpace(vals.Get("nick"))
	if nick == "" {
		nick = goname.New(goname.FantasyMap).FirstLast()
	}
	p := types.Participant{Id: id, Nick: nick, Role: types.RoleMember}
	if cfg.IsSuperUser(id) {
		p.Role = types.RoleSuperAdmin
	}
	return p, nil
}
