package repository

// Имена коллекций документного хранилища. Вложенность моделируется полями
// (conversationId, departmentId), а не путями.
const (
	ColUsers              = "users"
	ColConversations      = "conversations"
	ColMessages           = "messages"
	ColDepartments        = "departments"
	ColDepartmentMessages = "department_messages"
	ColAnnouncements      = "announcements"
	ColPolls              = "polls"
	ColPinnedMessages     = "pinned_messages"
	ColTasks              = "tasks"
	ColCleanupJobs        = "cleanup_jobs"
	ColCredentials        = "credentials"
)
