package auth

import (
	"context"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

const modelText = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.act == p.act
`

// Policy answers role permission checks from a casbin enforcer loaded with
// RolePermissions.
type Policy struct {
	enforcer *casbin.SyncedEnforcer
}

func NewPolicy() (*Policy, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("auth policy model: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	for role, perms := range RolePermissions {
		for _, perm := range perms {
			if _, err := e.AddPolicy(role, perm); err != nil {
				return nil, err
			}
		}
	}
	for role, parents := range roleParents {
		for _, parent := range parents {
			if _, err := e.AddGroupingPolicy(role, parent); err != nil {
				return nil, err
			}
		}
	}
	return &Policy{enforcer: e}, nil
}

func (p *Policy) HasPermission(_ context.Context, role, permission string) (bool, error) {
	if role == "" {
		return false, nil
	}
	return p.enforcer.Enforce(role, permission)
}

// Permissions lists what role may do, including inherited grants.
func (p *Policy) Permissions(role string) ([]string, error) {
	perms, err := p.enforcer.GetImplicitPermissionsForUser(role)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(perms))
	for _, rule := range perms {
		if len(rule) >= 2 {
			out = append(out, rule[1])
		}
	}
	return out, nil
}
