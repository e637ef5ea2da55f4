package permission

import "github.com/corpchat/internal/model"

// RoleRules — срез матрицы для одной роли; отдаётся наружу как есть,
// чтобы клиент не дублировал таблицу у себя.
type RoleRules struct {
	Role         model.Role          `json:"role"`
	Capabilities model.CapabilitySet `json:"capabilities"`
}

var roleOrder = []model.Role{
	model.RoleEmployee,
	model.RoleManager,
	model.RoleDirector,
}

// Rules возвращает полную матрицу возможностей в стабильном порядке ролей.
func Rules() []RoleRules {
	out := make([]RoleRules, 0, len(roleOrder))
	for _, r := range roleOrder {
		out = append(out, RoleRules{Role: r, Capabilities: matrix[r]})
	}
	return out
}

// Roles перечисляет известные роли в стабильном порядке.
func Roles() []model.Role {
	out := make([]model.Role, len(roleOrder))
	copy(out, roleOrder)
	return out
}
