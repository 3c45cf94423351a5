package filter

import (
	"fmt"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	"github.com/tcriess/clubchat/config"
	"github.com/tcriess/clubchat/globals"
	"github.com/tcriess/clubchat/types"
)

// Rules are the compiled access rules.
type Rules struct {
	super  *vm.Program
	manage *vm.Program
}

func compile(rule string) (*vm.Program, error) {
	if rule == "" {
		return nil, nil
	}
	return expr.Compile(rule, expr.Env(Env{}), expr.AsBool())
}

// NewRules compiles the rules of cfg. An empty rule never matches.
func NewRules(cfg config.AccessConfig) (*Rules, error) {
	super, err := compile(cfg.SuperFilter)
	if err != nil {
		return nil, fmt.Errorf("could not compile super filter: %w", err)
	}
	manage, err := compile(cfg.ManageFilter)
	if err != nil {
		return nil, fmt.Errorf("could not compile manage filter: %w", err)
	}
	return &Rules{super: super, manage: manage}, nil
}

func newEnv(p types.Participant, chat *types.Chat) Env {
	env := Env{
		Participant: Participant{
			Id:   p.Id,
			Nick: p.Nick,
			Role: string(p.Role),
		},
	}
	if chat != nil {
		env.Chat = Chat{
			Id:        chat.Id,
			Title:     chat.Title,
			CreatorId: chat.CreatorId,
			Members:   chat.Members,
			ClubId:    chat.ClubId,
			TeamId:    chat.TeamId,
			Closed:    chat.Closed,
		}
	}
	return env
}

func run(prog *vm.Program, env Env) bool {
	if prog == nil {
		return false
	}
	res, err := expr.Run(prog, env)
	if err != nil {
		globals.AppLogger.Error("could not run access rule", "error", err)
		return false
	}
	ok, _ := res.(bool)
	return ok
}

// IsSuper reports whether p is super-privileged.
func (r *Rules) IsSuper(p types.Participant) bool {
	return run(r.super, newEnv(p, nil))
}

// CanManage reports whether p may manage the members of chat, close it and delete it.
func (r *Rules) CanManage(p types.Participant, chat *types.Chat) bool {
	return r.IsSuper(p) || run(r.manage, newEnv(p, chat))
}

// Apply returns p with the super role set if the super rule matches.
func (r *Rules) Apply(p types.Participant) types.Participant {
	if p.Role == "" {
		p.Role = types.RoleMember
	}
	if r.IsSuper(p) {
		p.Role = types.RoleSuperAdmin
	}
	return p
}
