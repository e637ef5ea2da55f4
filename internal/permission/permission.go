// Package permission derives role capabilities and enforces them. The matrix
// is data, not branching: handlers and repositories ask the guard functions,
// never inspect roles directly.
package permission

import (
	"strings"

	"github.com/corpchat/internal/model"
)

// matrix — полная таблица возможностей по ролям. Неизвестная роль получает
// права employee (deny-by-default). Роль admin в таблицу не входит: она
// живёт только в веб-админке, и её маршруты проверяют роль напрямую.
var matrix = map[model.Role]model.CapabilitySet{
	model.RoleEmployee: {
		CanChatInDepartment:         true,
		CanViewDeptAnnouncements:    true,
		CanViewCompanyAnnouncements: true,
	},
	model.RoleManager: {
		CanCreateDeptAnnouncement:   true,
		CanPinMessages:              true,
		CanCreatePolls:              true,
		CanChatInDepartment:         true,
		CanViewDeptAnnouncements:    true,
		CanViewCompanyAnnouncements: true,
	},
	model.RoleDirector: {
		CanCreateCompanyAnnouncement: true,
		CanViewAllDepartments:        true,
		CanViewCompanyAnnouncements:  true,
	},
}

// Derive возвращает набор возможностей роли.
func Derive(role model.Role) model.CapabilitySet {
	caps, ok := matrix[role]
	if !ok {
		return matrix[model.RoleEmployee]
	}
	return caps
}

// IsManagerOfDepartment reports whether u manages dept (id or case-insensitive
// name match against the managed list and the home department). Only the
// manager role qualifies, whatever the managed list says.
func IsManagerOfDepartment(u *model.User, dept string) bool {
	if u.Role != model.RoleManager {
		return false
	}
	if sameDepartment(u.Department, dept) {
		return true
	}
	for _, d := range u.ManagedDepartments {
		if sameDepartment(d, dept) {
			return true
		}
	}
	return false
}

// CanChatInDepartment: писать можно в общий канал и в свой отдел; директор
// каналы только читает.
func CanChatInDepartment(u *model.User, dept string) bool {
	if !Derive(u.Role).CanChatInDepartment {
		return false
	}
	if sameDepartment(dept, model.GeneralDepartmentID) {
		return true
	}
	if sameDepartment(u.Department, dept) {
		return true
	}
	return IsManagerOfDepartment(u, dept)
}

// CanPinMessage: закреплять может только управляющий этим отделом.
func CanPinMessage(u *model.User, dept string) bool {
	return Derive(u.Role).CanPinMessages && IsManagerOfDepartment(u, dept)
}

// CanCreatePoll: опросы создаёт только управляющий этим отделом.
func CanCreatePoll(u *model.User, dept string) bool {
	return Derive(u.Role).CanCreatePolls && IsManagerOfDepartment(u, dept)
}

// CanCreateAnnouncement: пустой dept означает объявление уровня компании.
func CanCreateAnnouncement(u *model.User, dept string) bool {
	caps := Derive(u.Role)
	if dept == "" {
		return caps.CanCreateCompanyAnnouncement
	}
	return caps.CanCreateDeptAnnouncement && IsManagerOfDepartment(u, dept)
}

// CanViewAnnouncement проверяет и вертикаль (scope), и адресацию по отделам.
func CanViewAnnouncement(u *model.User, a *model.Announcement) bool {
	caps := Derive(u.Role)
	if a.Scope == model.ScopeCompany {
		return caps.CanViewCompanyAnnouncements
	}
	if !caps.CanViewDeptAnnouncements {
		return false
	}
	if len(a.TargetDepartments) == 0 {
		return true
	}
	for _, t := range a.TargetDepartments {
		if sameDepartment(t, u.Department) {
			return true
		}
	}
	return IsManagerOfAny(u, a.TargetDepartments)
}

// CanViewAllDepartments — сквозной просмотр всех каналов. Админ проверяется
// напрямую, минуя таблицу: это роль админки, а не протокола.
func CanViewAllDepartments(u *model.User) bool {
	return u.Role == model.RoleAdmin || Derive(u.Role).CanViewAllDepartments
}

// CanViewStats — статистика доступна тем, кто видит все отделы.
func CanViewStats(u *model.User) bool {
	return CanViewAllDepartments(u)
}

// IsManagerOfAny сообщает, управляет ли u хотя бы одним из отделов.
func IsManagerOfAny(u *model.User, depts []string) bool {
	for _, d := range depts {
		if IsManagerOfDepartment(u, d) {
			return true
		}
	}
	return false
}

// sameDepartment сравнивает идентификаторы отделов без учёта регистра:
// исторические документы хранят и slug, и человекочитаемое имя.
func sameDepartment(a, b string) bool {
	return a != "" && b != "" && strings.EqualFold(a, b)
}
