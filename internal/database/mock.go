package database

import (
	"github.com/stretchr/testify/mock"
)

type MockStudyCircleRepository struct {
	mock.Mock
}

func (m *MockStudyCircleRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockStudyCircleRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockStudyCircleRepository) GetAccountById(accountId int) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockStudyCircleRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockStudyCircleRepository) CreateGroup(params CreateGroupParams) (Group, error) {
	args := m.Called(params)
	return args.Get(0).(Group), args.Error(1)
}
func (m *MockStudyCircleRepository) GetGroupById(groupId int) (Group, error) {
	args := m.Called(groupId)
	return args.Get(0).(Group), args.Error(1)
}
func (m *MockStudyCircleRepository) UpdateGroup(params UpdateGroupParams) (Group, error) {
	args := m.Called(params)
	return args.Get(0).(Group), args.Error(1)
}
func (m *MockStudyCircleRepository) ListGroups(filters GroupFilters, page, limit int) ([]Group, error) {
	args := m.Called(filters, page, limit)
	return args.Get(0).([]Group), args.Error(1)
}
func (m *MockStudyCircleRepository) ListGroupsForMember(accountId int) ([]Group, error) {
	args := m.Called(accountId)
	return args.Get(0).([]Group), args.Error(1)
}
func (m *MockStudyCircleRepository) DeleteGroup(groupId int) error {
	args := m.Called(groupId)
	return args.Error(0)
}
func (m *MockStudyCircleRepository) AddGroupMember(groupId, accountId int) error {
	args := m.Called(groupId, accountId)
	return args.Error(0)
}
func (m *MockStudyCircleRepository) RemoveGroupMember(groupId, accountId int) error {
	args := m.Called(groupId, accountId)
	return args.Error(0)
}
func (m *MockStudyCircleRepository) IsGroupMember(groupId, accountId int) (bool, error) {
	args := m.Called(groupId, accountId)
	return args.Bool(0), args.Error(1)
}
func (m *MockStudyCircleRepository) GetGroupMembers(groupId int) ([]User, error) {
	args := m.Called(groupId)
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockStudyCircleRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockStudyCircleRepository) GetMessageById(messageId int) (Message, error) {
	args := m.Called(messageId)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockStudyCircleRepository) GetGroupMessages(groupId, page, limit int) ([]Message, error) {
	args := m.Called(groupId, page, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockStudyCircleRepository) CreateNotificationForUsers(accountIds []int, params CreateNotificationParams) ([]int, error) {
	args := m.Called(accountIds, params)
	return args.Get(0).([]int), args.Error(1)
}
func (m *MockStudyCircleRepository) ListNotifications(accountId, page, limit int) ([]Notification, error) {
	args := m.Called(accountId, page, limit)
	return args.Get(0).([]Notification), args.Error(1)
}
func (m *MockStudyCircleRepository) CountUnreadNotifications(accountId int) (int, error) {
	args := m.Called(accountId)
	return args.Int(0), args.Error(1)
}
func (m *MockStudyCircleRepository) MarkNotificationRead(notificationId, accountId int) error {
	args := m.Called(notificationId, accountId)
	return args.Error(0)
}
func (m *MockStudyCircleRepository) MarkAllNotificationsRead(accountId int) error {
	args := m.Called(accountId)
	return args.Error(0)
}
func (m *MockStudyCircleRepository) DeleteNotification(notificationId, accountId int) error {
	args := m.Called(notificationId, accountId)
	return args.Error(0)
}
