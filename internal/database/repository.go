package database

type StudyCircleRepository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)
	CreateGroup(params CreateGroupParams) (Group, error)
	GetGroupById(groupId int) (Group, error)
	UpdateGroup(params UpdateGroupParams) (Group, error)
	ListGroups(filters GroupFilters, page, limit int) ([]Group, error)
	ListGroupsForMember(accountId int) ([]Group, error)
	DeleteGroup(groupId int) error
	AddGroupMember(groupId, accountId int) error
	RemoveGroupMember(groupId, accountId int) error
	IsGroupMember(groupId, accountId int) (bool, error)
	GetGroupMembers(groupId int) ([]User, error)
	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessageById(messageId int) (Message, error)
	GetGroupMessages(groupId, page, limit int) ([]Message, error)
	CreateNotificationForUsers(accountIds []int, params CreateNotificationParams) ([]int, error)
	ListNotifications(accountId, page, limit int) ([]Notification, error)
	CountUnreadNotifications(accountId int) (int, error)
	MarkNotificationRead(notificationId, accountId int) error
	MarkAllNotificationsRead(accountId int) error
	DeleteNotification(notificationId, accountId int) error
}
