package database

import "time"

type User struct {
	Id           int
	Name         string
	EmailAddress string
	PasswordHash string
	Course       string
	Semester     int
	Phone        string
	Bio          string
	Avatar       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Group struct {
	Id          int
	Subject     string
	Objective   string
	Location    string
	Description string
	MaxMembers  int
	MeetingTime string
	MeetingDays []string
	OwnerId     int
	MemberCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Message struct {
	Id         int
	GroupId    int
	UserId     int
	Body       string
	UserName   string
	UserAvatar string
	CreatedAt  time.Time
}

type Notification struct {
	Id        int
	UserId    int
	Type      string
	Message   string
	Data      []byte
	Read      bool
	CreatedAt time.Time
}

type CreateAccountParams struct {
	Name         string
	EmailAddress string
	PasswordHash string
	Course       string
	Semester     int
}

type CreateGroupParams struct {
	Subject     string
	Objective   string
	Location    string
	Description string
	MaxMembers  int
	MeetingTime string
	MeetingDays []string
	OwnerId     int
}

type UpdateGroupParams struct {
	GroupId     int
	Subject     string
	Objective   string
	Location    string
	Description string
	MaxMembers  int
	MeetingTime string
	MeetingDays []string
}

type GroupFilters struct {
	Subject   string
	Location  string
	Objective string
}

type CreateMessageParams struct {
	GroupId int
	UserId  int
	Body    string
}

type CreateNotificationParams struct {
	Type    string
	Message string
	Data    []byte
}
