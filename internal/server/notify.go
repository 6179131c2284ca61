package server

import (
	"encoding/json"
	"fmt"

	"github.com/studycircle/studycircle/internal/database"
)

type messageNotificationData struct {
	GroupId    int    `json:"group_id"`
	GroupName  string `json:"group_name"`
	MessageId  int    `json:"message_id"`
	SenderId   int    `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Preview    string `json:"preview"`
}

// notifyOfflineMembers records a notification for every group member who is
// neither the sender nor currently connected. Failures are logged and never
// surfaced to the sender, the message itself already went through.
func (r *Room) notifyOfflineMembers(sender *Client, msg database.Message) {
	members, err := r.db.GetGroupMembers(r.groupId)
	if err != nil {
		r.log.Printf("room %d: fetch members for notifications: %v", r.groupId, err)
		return
	}

	memberIds := make([]int, 0, len(members))
	for _, member := range members {
		memberIds = append(memberIds, member.Id)
	}
	online := r.cs.OnlineAmong(memberIds)

	recipients := make([]int, 0, len(members))
	for _, member := range members {
		if member.Id == sender.user.Id || online[member.Id] {
			continue
		}
		recipients = append(recipients, member.Id)
	}
	if len(recipients) == 0 {
		return
	}

	data, err := json.Marshal(messageNotificationData{
		GroupId:    r.groupId,
		GroupName:  r.subject,
		MessageId:  msg.Id,
		SenderId:   sender.user.Id,
		SenderName: sender.user.Name,
		Preview:    msg.Body,
	})
	if err != nil {
		r.log.Printf("room %d: marshal notification data: %v", r.groupId, err)
		return
	}

	created, err := r.db.CreateNotificationForUsers(recipients, database.CreateNotificationParams{
		Type:    "new_message",
		Message: fmt.Sprintf("%s sent a message in %q", sender.user.Name, r.subject),
		Data:    data,
	})
	if err != nil {
		r.log.Printf("room %d: create notifications: %v", r.groupId, err)
	}

	for range created {
		r.stats.Incr("NotificationsCreated")
	}
}
