package types

import (
	"encoding/json"
	"time"
)

type User struct {
	Id           int       `json:"id"`
	Name         string    `json:"name"`
	EmailAddress string    `json:"email_address,omitempty"`
	Course       string    `json:"course,omitempty"`
	Semester     int       `json:"semester,omitempty"`
	Avatar       string    `json:"avatar,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Group struct {
	Id          int       `json:"id"`
	Subject     string    `json:"subject"`
	Objective   string    `json:"objective"`
	Location    string    `json:"location"`
	Description string    `json:"description,omitempty"`
	MaxMembers  int       `json:"max_members"`
	MeetingTime string    `json:"meeting_time,omitempty"`
	MeetingDays []string  `json:"meeting_days,omitempty"`
	OwnerId     int       `json:"owner_id"`
	MemberCount int       `json:"member_count"`
	Members     []User    `json:"members,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

type Message struct {
	Id        int       `json:"id"`
	GroupId   int       `json:"group_id"`
	UserId    int       `json:"user_id"`
	Body      string    `json:"message"`
	User      *User     `json:"user,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Notification struct {
	Id        int             `json:"id"`
	UserId    int             `json:"user_id"`
	Type      string          `json:"type"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	Read      bool            `json:"read"`
	Timestamp time.Time       `json:"timestamp"`
}
