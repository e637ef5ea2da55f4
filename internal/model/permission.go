package model

// CapabilitySet — права роли в чатах и каналах отделов.
// Фиксированный набор булевых флагов; выводится только из роли (см. permission.Derive).
type CapabilitySet struct {
	CanCreateDeptAnnouncement    bool `json:"can_create_dept_announcement"`
	CanCreateCompanyAnnouncement bool `json:"can_create_company_announcement"`
	CanPinMessages               bool `json:"can_pin_messages"`
	CanCreatePolls               bool `json:"can_create_polls"`
	CanViewAllDepartments        bool `json:"can_view_all_departments"`
	CanChatInDepartment          bool `json:"can_chat_in_department"`
	CanViewDeptAnnouncements     bool `json:"can_view_dept_announcements"`
	CanViewCompanyAnnouncements  bool `json:"can_view_company_announcements"`
}
