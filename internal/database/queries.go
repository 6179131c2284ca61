package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

func (db *PgStudyCircleRepository) CreateAccount(params CreateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (name, email, password_hash, course, semester, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $6) RETURNING id, name, email, course, semester, created_at, updated_at",
		params.Name,
		params.EmailAddress,
		params.PasswordHash,
		params.Course,
		params.Semester,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Name,
		&u.EmailAddress,
		&u.Course,
		&u.Semester,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgStudyCircleRepository) GetAccountById(accountId int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, email, course, semester, phone, bio, avatar, created_at, updated_at "+
			"FROM accounts WHERE id = $1 LIMIT 1",
		accountId,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Name,
		&u.EmailAddress,
		&u.Course,
		&u.Semester,
		&u.Phone,
		&u.Bio,
		&u.Avatar,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgStudyCircleRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, email, password_hash, course, semester, avatar, created_at, updated_at "+
			"FROM accounts WHERE email = $1 LIMIT 1",
		email,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Name,
		&u.EmailAddress,
		&u.PasswordHash,
		&u.Course,
		&u.Semester,
		&u.Avatar,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgStudyCircleRepository) CreateGroup(params CreateGroupParams) (Group, error) {
	days, err := json.Marshal(params.MeetingDays)
	if err != nil {
		return Group{}, fmt.Errorf("encode meeting days: %w", err)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return Group{}, err
	}
	defer tx.Rollback()

	res := tx.QueryRow(
		"INSERT INTO groups (subject, objective, location, description, max_members, meeting_time, meeting_days, owner_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9) "+
			"RETURNING id, subject, objective, location, description, max_members, meeting_time, owner_id, created_at, updated_at",
		params.Subject,
		params.Objective,
		params.Location,
		params.Description,
		params.MaxMembers,
		params.MeetingTime,
		days,
		params.OwnerId,
		time.Now().UTC(),
	)

	var g Group
	if err := res.Scan(
		&g.Id,
		&g.Subject,
		&g.Objective,
		&g.Location,
		&g.Description,
		&g.MaxMembers,
		&g.MeetingTime,
		&g.OwnerId,
		&g.CreatedAt,
		&g.UpdatedAt,
	); err != nil {
		return Group{}, err
	}

	// the owner is always a member of their own group
	if _, err := tx.Exec(
		"INSERT INTO group_members (group_id, account_id) VALUES ($1, $2)",
		g.Id, params.OwnerId,
	); err != nil {
		return Group{}, err
	}

	if err := tx.Commit(); err != nil {
		return Group{}, err
	}

	g.MeetingDays = params.MeetingDays
	g.MemberCount = 1
	return g, nil
}

func (db *PgStudyCircleRepository) GetGroupById(groupId int) (Group, error) {
	row := db.conn.QueryRow(
		"SELECT g.id, g.subject, g.objective, g.location, g.description, g.max_members, g.meeting_time, g.meeting_days, g.owner_id, "+
			"(SELECT COUNT(*) FROM group_members gm WHERE gm.group_id = g.id) AS member_count, g.created_at, g.updated_at "+
			"FROM groups g WHERE g.id = $1 LIMIT 1",
		groupId,
	)

	return scanGroup(row)
}

func (db *PgStudyCircleRepository) UpdateGroup(params UpdateGroupParams) (Group, error) {
	days, err := json.Marshal(params.MeetingDays)
	if err != nil {
		return Group{}, fmt.Errorf("encode meeting days: %w", err)
	}

	row := db.conn.QueryRow(
		"UPDATE groups g SET subject = $1, objective = $2, location = $3, description = $4, "+
			"max_members = $5, meeting_time = $6, meeting_days = $7, updated_at = $8 WHERE g.id = $9 "+
			"RETURNING g.id, g.subject, g.objective, g.location, g.description, g.max_members, g.meeting_time, g.meeting_days, g.owner_id, "+
			"(SELECT COUNT(*) FROM group_members gm WHERE gm.group_id = g.id) AS member_count, g.created_at, g.updated_at",
		params.Subject,
		params.Objective,
		params.Location,
		params.Description,
		params.MaxMembers,
		params.MeetingTime,
		days,
		time.Now().UTC(),
		params.GroupId,
	)

	return scanGroup(row)
}

func (db *PgStudyCircleRepository) ListGroups(filters GroupFilters, page, limit int) ([]Group, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	rows, err := db.conn.Query(
		"SELECT g.id, g.subject, g.objective, g.location, g.description, g.max_members, g.meeting_time, g.meeting_days, g.owner_id, "+
			"(SELECT COUNT(*) FROM group_members gm WHERE gm.group_id = g.id) AS member_count, g.created_at, g.updated_at "+
			"FROM groups g "+
			"WHERE ($1 = '' OR g.subject ILIKE '%' || $1 || '%') "+
			"AND ($2 = '' OR g.location ILIKE '%' || $2 || '%') "+
			"AND ($3 = '' OR g.objective ILIKE '%' || $3 || '%') "+
			"ORDER BY g.created_at DESC LIMIT $4 OFFSET $5",
		filters.Subject,
		filters.Location,
		filters.Objective,
		limit,
		(page-1)*limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}

	return groups, rows.Err()
}

func (db *PgStudyCircleRepository) ListGroupsForMember(accountId int) ([]Group, error) {
	rows, err := db.conn.Query(
		"SELECT g.id, g.subject, g.objective, g.location, g.description, g.max_members, g.meeting_time, g.meeting_days, g.owner_id, "+
			"(SELECT COUNT(*) FROM group_members gm WHERE gm.group_id = g.id) AS member_count, g.created_at, g.updated_at "+
			"FROM groups g JOIN group_members m ON m.group_id = g.id "+
			"WHERE m.account_id = $1 ORDER BY g.created_at DESC",
		accountId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}

	return groups, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (Group, error) {
	var (
		g    Group
		days []byte
	)
	err := row.Scan(
		&g.Id,
		&g.Subject,
		&g.Objective,
		&g.Location,
		&g.Description,
		&g.MaxMembers,
		&g.MeetingTime,
		&days,
		&g.OwnerId,
		&g.MemberCount,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		return Group{}, err
	}

	if len(days) > 0 {
		if err := json.Unmarshal(days, &g.MeetingDays); err != nil {
			return Group{}, fmt.Errorf("decode meeting days: %w", err)
		}
	}

	return g, nil
}

func (db *PgStudyCircleRepository) DeleteGroup(groupId int) error {
	res, err := db.conn.Exec("DELETE FROM groups WHERE id = $1", groupId)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (db *PgStudyCircleRepository) AddGroupMember(groupId, accountId int) error {
	_, err := db.conn.Exec(
		"INSERT INTO group_members (group_id, account_id) VALUES ($1, $2)",
		groupId, accountId,
	)
	return err
}

func (db *PgStudyCircleRepository) RemoveGroupMember(groupId, accountId int) error {
	res, err := db.conn.Exec(
		"DELETE FROM group_members WHERE group_id = $1 AND account_id = $2",
		groupId, accountId,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (db *PgStudyCircleRepository) IsGroupMember(groupId, accountId int) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM group_members WHERE group_id = $1 AND account_id = $2)",
		groupId, accountId,
	)

	var exists bool
	err := row.Scan(&exists)
	return exists, err
}

func (db *PgStudyCircleRepository) GetGroupMembers(groupId int) ([]User, error) {
	rows, err := db.conn.Query(
		"SELECT a.id, a.name, a.email, a.course, a.semester, a.avatar "+
			"FROM accounts a JOIN group_members gm ON gm.account_id = a.id "+
			"WHERE gm.group_id = $1 ORDER BY gm.joined_at",
		groupId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Id, &u.Name, &u.EmailAddress, &u.Course, &u.Semester, &u.Avatar); err != nil {
			return nil, err
		}
		members = append(members, u)
	}

	return members, rows.Err()
}

func (db *PgStudyCircleRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	res := db.conn.QueryRow(
		"INSERT INTO messages (group_id, account_id, body, created_at) VALUES ($1, $2, $3, $4) "+
			"RETURNING id, group_id, account_id, body, created_at",
		params.GroupId,
		params.UserId,
		params.Body,
		time.Now().UTC(),
	)

	var m Message
	err := res.Scan(&m.Id, &m.GroupId, &m.UserId, &m.Body, &m.CreatedAt)
	return m, err
}

func (db *PgStudyCircleRepository) GetMessageById(messageId int) (Message, error) {
	row := db.conn.QueryRow(
		"SELECT m.id, m.group_id, m.account_id, m.body, m.created_at, a.name, a.avatar "+
			"FROM messages m JOIN accounts a ON a.id = m.account_id "+
			"WHERE m.id = $1 LIMIT 1",
		messageId,
	)

	var m Message
	err := row.Scan(&m.Id, &m.GroupId, &m.UserId, &m.Body, &m.CreatedAt, &m.UserName, &m.UserAvatar)
	return m, err
}

// GetGroupMessages returns one page of a group's messages, newest first.
func (db *PgStudyCircleRepository) GetGroupMessages(groupId, page, limit int) ([]Message, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}

	rows, err := db.conn.Query(
		"SELECT m.id, m.group_id, m.account_id, m.body, m.created_at, a.name, a.avatar "+
			"FROM messages m JOIN accounts a ON a.id = m.account_id "+
			"WHERE m.group_id = $1 ORDER BY m.created_at DESC, m.id DESC LIMIT $2 OFFSET $3",
		groupId,
		limit,
		(page-1)*limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Id, &m.GroupId, &m.UserId, &m.Body, &m.CreatedAt, &m.UserName, &m.UserAvatar); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// CreateNotificationForUsers writes one notification record per recipient.
// Records written before a failure are kept; errors for individual
// recipients are aggregated and returned alongside the ids that succeeded.
func (db *PgStudyCircleRepository) CreateNotificationForUsers(accountIds []int, params CreateNotificationParams) ([]int, error) {
	var (
		ids    []int
		result *multierror.Error
	)

	for _, accountId := range accountIds {
		row := db.conn.QueryRow(
			"INSERT INTO notifications (account_id, type, message, data, created_at) "+
				"VALUES ($1, $2, $3, $4, $5) RETURNING id",
			accountId,
			params.Type,
			params.Message,
			params.Data,
			time.Now().UTC(),
		)

		var id int
		if err := row.Scan(&id); err != nil {
			result = multierror.Append(result, fmt.Errorf("notification for account %d: %w", accountId, err))
			continue
		}
		ids = append(ids, id)
	}

	return ids, result.ErrorOrNil()
}

func (db *PgStudyCircleRepository) ListNotifications(accountId, page, limit int) ([]Notification, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	rows, err := db.conn.Query(
		"SELECT id, account_id, type, message, data, read, created_at FROM notifications "+
			"WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		accountId,
		limit,
		(page-1)*limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.Id, &n.UserId, &n.Type, &n.Message, &n.Data, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

func (db *PgStudyCircleRepository) CountUnreadNotifications(accountId int) (int, error) {
	row := db.conn.QueryRow(
		"SELECT COUNT(*) FROM notifications WHERE account_id = $1 AND read = FALSE",
		accountId,
	)

	var count int
	err := row.Scan(&count)
	return count, err
}

func (db *PgStudyCircleRepository) MarkNotificationRead(notificationId, accountId int) error {
	res, err := db.conn.Exec(
		"UPDATE notifications SET read = TRUE WHERE id = $1 AND account_id = $2",
		notificationId, accountId,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (db *PgStudyCircleRepository) MarkAllNotificationsRead(accountId int) error {
	_, err := db.conn.Exec(
		"UPDATE notifications SET read = TRUE WHERE account_id = $1 AND read = FALSE",
		accountId,
	)
	return err
}

func (db *PgStudyCircleRepository) DeleteNotification(notificationId, accountId int) error {
	res, err := db.conn.Exec(
		"DELETE FROM notifications WHERE id = $1 AND account_id = $2",
		notificationId, accountId,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}
