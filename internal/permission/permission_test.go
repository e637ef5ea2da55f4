package permission_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/corpchat/internal/model"
	"github.com/corpchat/internal/permission"
)

func TestPermission(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Permission Suite")
}

func user(role model.Role, dept string, managed ...string) *model.User {
	return &model.User{ID: "u1", Role: role, Department: dept, ManagedDepartments: managed}
}

var _ = Describe("Derive", func() {
	It("falls back to employee capabilities for unknown roles", func() {
		Expect(permission.Derive("intern")).To(Equal(permission.Derive(model.RoleEmployee)))
		Expect(permission.Derive("")).To(Equal(permission.Derive(model.RoleEmployee)))
	})

	It("covers every declared role", func() {
		for _, r := range permission.Rules() {
			Expect(permission.Derive(r.Role)).To(Equal(r.Capabilities), "role %s", r.Role)
		}
	})

	It("gives directors company-wide read but no chat", func() {
		caps := permission.Derive(model.RoleDirector)
		Expect(caps.CanViewAllDepartments).To(BeTrue())
		Expect(caps.CanCreateCompanyAnnouncement).To(BeTrue())
		Expect(caps.CanChatInDepartment).To(BeFalse())
		Expect(caps.CanPinMessages).To(BeFalse())
		Expect(caps.CanCreatePolls).To(BeFalse())
		Expect(caps.CanCreateDeptAnnouncement).To(BeFalse())
		Expect(caps.CanViewDeptAnnouncements).To(BeFalse())
	})
})

var _ = Describe("Channel chat", func() {
	It("lets every chatting role write to the general channel", func() {
		Expect(permission.CanChatInDepartment(user(model.RoleEmployee, "sales"), model.GeneralDepartmentID)).To(BeTrue())
		Expect(permission.CanChatInDepartment(user(model.RoleManager, "sales"), model.GeneralDepartmentID)).To(BeTrue())
	})

	It("keeps directors read-only even in general", func() {
		Expect(permission.CanChatInDepartment(user(model.RoleDirector, ""), model.GeneralDepartmentID)).To(BeFalse())
		Expect(permission.CanChatInDepartment(user(model.RoleDirector, ""), "sales")).To(BeFalse())
	})

	It("limits employees to their own department", func() {
		u := user(model.RoleEmployee, "sales")
		Expect(permission.CanChatInDepartment(u, "sales")).To(BeTrue())
		Expect(permission.CanChatInDepartment(u, "engineering")).To(BeFalse())
	})

	It("matches department names case-insensitively", func() {
		Expect(permission.CanChatInDepartment(user(model.RoleEmployee, "Sales"), "sales")).To(BeTrue())
	})
})

var _ = Describe("Manager scoping", func() {
	It("scopes pins and polls to the manager's own department", func() {
		m := user(model.RoleManager, "engineering")
		Expect(permission.CanPinMessage(m, "engineering")).To(BeTrue())
		Expect(permission.CanPinMessage(m, "sales")).To(BeFalse())
		Expect(permission.CanCreatePoll(m, "engineering")).To(BeTrue())
		Expect(permission.CanCreatePoll(m, "sales")).To(BeFalse())
	})

	It("honours the legacy managed-departments list", func() {
		m := user(model.RoleManager, "engineering", "sales")
		Expect(permission.CanPinMessage(m, "sales")).To(BeTrue())
	})

	It("never treats an employee as a manager, whatever the list says", func() {
		e := user(model.RoleEmployee, "sales", "sales")
		Expect(permission.IsManagerOfDepartment(e, "sales")).To(BeFalse())
	})

	It("keeps admins out of the capability matrix", func() {
		a := user(model.RoleAdmin, "engineering")
		a.ManagedDepartments = []string{"sales"}
		Expect(permission.Derive(model.RoleAdmin)).To(Equal(permission.Derive(model.RoleEmployee)))
		Expect(permission.IsManagerOfDepartment(a, "sales")).To(BeFalse())
		Expect(permission.CanPinMessage(a, "sales")).To(BeFalse())
		Expect(permission.CanCreatePoll(a, "engineering")).To(BeFalse())
	})

	It("still gives admins the dashboard-wide views", func() {
		a := user(model.RoleAdmin, "")
		Expect(permission.CanViewAllDepartments(a)).To(BeTrue())
		Expect(permission.CanViewStats(a)).To(BeTrue())
	})
})

var _ = Describe("Announcements", func() {
	It("requires director rank for company scope", func() {
		Expect(permission.CanCreateAnnouncement(user(model.RoleDirector, ""), "")).To(BeTrue())
		Expect(permission.CanCreateAnnouncement(user(model.RoleManager, "sales"), "")).To(BeFalse())
		Expect(permission.CanCreateAnnouncement(user(model.RoleEmployee, "sales"), "")).To(BeFalse())
	})

	It("lets managers announce only to departments they manage", func() {
		m := user(model.RoleManager, "sales")
		Expect(permission.CanCreateAnnouncement(m, "sales")).To(BeTrue())
		Expect(permission.CanCreateAnnouncement(m, "engineering")).To(BeFalse())
	})

	It("shows department announcements only to the targeted departments", func() {
		a := &model.Announcement{Scope: model.ScopeDepartment, TargetDepartments: []string{"sales"}}
		Expect(permission.CanViewAnnouncement(user(model.RoleEmployee, "sales"), a)).To(BeTrue())
		Expect(permission.CanViewAnnouncement(user(model.RoleEmployee, "engineering"), a)).To(BeFalse())
	})

	It("shows company announcements to everyone, including directors", func() {
		a := &model.Announcement{Scope: model.ScopeCompany}
		Expect(permission.CanViewAnnouncement(user(model.RoleEmployee, "sales"), a)).To(BeTrue())
		Expect(permission.CanViewAnnouncement(user(model.RoleDirector, ""), a)).To(BeTrue())
	})

	It("hides department announcements from directors", func() {
		a := &model.Announcement{Scope: model.ScopeDepartment, TargetDepartments: []string{"sales"}}
		Expect(permission.CanViewAnnouncement(user(model.RoleDirector, ""), a)).To(BeFalse())
	})
})
