package filter

import (
	"testing"

	"github.com/antonmedv/expr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/clubchat/config"
	"github.com/tcriess/clubchat/types"
)

var defaultAccess = config.AccessConfig{
	SuperFilter:  `Participant.Role == "superadmin"`,
	ManageFilter: `Participant.Id == Chat.CreatorId`,
}

func TestDefaultRules(t *testing.T) {
	rules, err := NewRules(defaultAccess)
	require.NoError(t, err)
	chat := &types.Chat{Id: "c1", CreatorId: "coach", Members: []string{"coach", "player"}}

	admin := types.Participant{Id: "admin", Role: types.RoleSuperAdmin}
	coach := types.Participant{Id: "coach", Role: types.RoleMember}
	player := types.Participant{Id: "player", Role: types.RoleMember}

	assert.True(t, rules.IsSuper(admin))
	assert.False(t, rules.IsSuper(coach))
	assert.True(t, rules.CanManage(admin, chat))
	assert.True(t, rules.CanManage(coach, chat))
	assert.False(t, rules.CanManage(player, chat))
}

func TestCustomRules(t *testing.T) {
	rules, err := NewRules(config.AccessConfig{
		SuperFilter:  `Participant.Id endsWith "@board.example.com"`,
		ManageFilter: `Participant.Id == Chat.CreatorId || (Chat.TeamId != "" && Participant.Id in Chat.Members && Participant.Nick startsWith "Coach")`,
	})
	require.NoError(t, err)

	chair := rules.Apply(types.Participant{Id: "chair@board.example.com"})
	assert.Equal(t, types.RoleSuperAdmin, chair.Role)
	player := rules.Apply(types.Participant{Id: "player@example.com", Nick: "Player"})
	assert.Equal(t, types.RoleMember, player.Role)

	chat := &types.Chat{CreatorId: "a", TeamId: "u17", Members: []string{"a", "b@example.com"}}
	assert.True(t, rules.CanManage(types.Participant{Id: "b@example.com", Nick: "Coach B"}, chat))
	assert.False(t, rules.CanManage(types.Participant{Id: "c@example.com", Nick: "Coach C"}, chat))
	chat.TeamId = ""
	assert.False(t, rules.CanManage(types.Participant{Id: "b@example.com", Nick: "Coach B"}, chat))
}

func TestInvalidRules(t *testing.T) {
	_, err := NewRules(config.AccessConfig{SuperFilter: `Participant.Unknown == 1`})
	assert.Error(t, err)
	_, err = NewRules(config.AccessConfig{ManageFilter: `Chat.Title`})
	assert.Error(t, err)

	rules, err := NewRules(config.AccessConfig{})
	require.NoError(t, err)
	assert.False(t, rules.IsSuper(types.Participant{Id: "x", Role: types.RoleSuperAdmin}))
}

func TestEnvEval(t *testing.T) {
	env := newEnv(types.Participant{Id: "p", Role: types.RoleMember}, &types.Chat{Id: "c", Members: []string{"p"}})
	res, err := expr.Eval(`Participant.Id in Chat.Members`, env)
	require.NoError(t, err)
	assert.Equal(t, true, res.(bool))
}
