package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lib/pq"
	"github.com/studycircle/studycircle/internal/database"
	"github.com/studycircle/studycircle/internal/server"
	"github.com/studycircle/studycircle/internal/types"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Course   string `json:"course"`
	Semester int    `json:"semester"`
}

type CreateGroupRequest struct {
	Subject     string   `json:"subject"`
	Objective   string   `json:"objective"`
	Location    string   `json:"location"`
	Description string   `json:"description"`
	MaxMembers  int      `json:"max_members"`
	MeetingTime string   `json:"meeting_time"`
	MeetingDays []string `json:"meeting_days"`
}

const (
	defaultMaxMembers = 10
	defaultPageLimit  = 20
	maxPageLimit      = 100
)

func (s *StudyCircleApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *StudyCircleApp) writeError(w http.ResponseWriter, errResp *ApiError) {
	if errResp.Err != nil {
		s.log.Println(errResp.Error())
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func idParam(r *http.Request) (int, error) {
	return strconv.Atoi(r.PathValue("id"))
}

func pagination(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	return page, limit
}

func apiUser(u database.User) types.User {
	return types.User{
		Id:           u.Id,
		Name:         u.Name,
		EmailAddress: u.EmailAddress,
		Course:       u.Course,
		Semester:     u.Semester,
		Avatar:       u.Avatar,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func apiGroup(g database.Group) types.Group {
	return types.Group{
		Id:          g.Id,
		Subject:     g.Subject,
		Objective:   g.Objective,
		Location:    g.Location,
		Description: g.Description,
		MaxMembers:  g.MaxMembers,
		MeetingTime: g.MeetingTime,
		MeetingDays: g.MeetingDays,
		OwnerId:     g.OwnerId,
		MemberCount: g.MemberCount,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

func apiNotification(n database.Notification) types.Notification {
	return types.Notification{
		Id:        n.Id,
		UserId:    n.UserId,
		Type:      n.Type,
		Message:   n.Message,
		Data:      json.RawMessage(n.Data),
		Read:      n.Read,
		Timestamp: n.CreatedAt,
	}
}

func (s *StudyCircleApp) healthCheck(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Println("health check:", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Write([]byte("OK"))
}

func (s *StudyCircleApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError(""))
		return
	}

	if req.Name == "" || req.Email == "" || req.Password == "" {
		s.writeError(w, NewBadRequestError("name, email and password are required"))
		return
	}

	if _, err := mail.ParseAddress(req.Email); err != nil {
		s.writeError(w, NewBadRequestError("invalid email address"))
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	newUser, err := s.db.CreateAccount(database.CreateAccountParams{
		Name:         req.Name,
		EmailAddress: req.Email,
		PasswordHash: pwdHash,
		Course:       req.Course,
		Semester:     req.Semester,
	})
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			s.writeError(w, NewConflictError("an account with this email already exists"))
			return
		}
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, apiUser(newUser))
}

func (s *StudyCircleApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		s.writeError(w, NewBadRequestError(""))
		return
	}

	if lr.Email == "" || lr.Password == "" {
		s.writeError(w, NewBadRequestError("email and password are required"))
		return
	}

	dbUser, err := s.db.GetAccountByEmail(lr.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, NewUnauthorizedError())
		} else {
			s.writeError(w, NewInternalServerError(err))
		}
		return
	}

	if !verifyPassword(dbUser.PasswordHash, lr.Password) {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	token, err := s.createJwtForSession(dbUser.Id, defaultJwtExpiration)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	http.SetCookie(w, createJwtCookie(token, defaultJwtExpiration))

	s.writeJson(w, http.StatusOK, apiUser(dbUser))
}

func (s *StudyCircleApp) session(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	user, err := s.db.GetAccountById(userId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, NewNotFoundError())
		} else {
			s.writeError(w, NewInternalServerError(err))
		}
		return
	}

	s.writeJson(w, http.StatusOK, apiUser(user))
}

func (s *StudyCircleApp) logout(w http.ResponseWriter, _ *http.Request) {
	// instruct browser to delete cookie by overwriting it with an expired token
	http.SetCookie(w, createJwtCookie("", time.Duration(time.Unix(0, 0).Unix())))
	w.WriteHeader(http.StatusNoContent)
}

func (s *StudyCircleApp) createGroup(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError(""))
		return
	}

	if req.Subject == "" {
		s.writeError(w, NewBadRequestError("subject is required"))
		return
	}
	if req.MaxMembers == 0 {
		req.MaxMembers = defaultMaxMembers
	}
	if req.MaxMembers < 2 {
		s.writeError(w, NewBadRequestError("group must allow at least two members"))
		return
	}

	newGroup, err := s.db.CreateGroup(database.CreateGroupParams{
		Subject:     req.Subject,
		Objective:   req.Objective,
		Location:    req.Location,
		Description: req.Description,
		MaxMembers:  req.MaxMembers,
		MeetingTime: req.MeetingTime,
		MeetingDays: req.MeetingDays,
		OwnerId:     userId,
	})
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, apiGroup(newGroup))
}

func (s *StudyCircleApp) updateGroup(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	groupId, err := idParam(r)
	if err != nil {
		s.writeError(w, NewBadRequestError("invalid group id"))
		return
	}

	group, err := s.db.GetGroupById(groupId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, NewNotFoundError())
		} else {
			s.writeError(w, NewInternalServerError(err))
		}
		return
	}

	if group.OwnerId != userId {
		s.writeError(w, NewForbiddenError())
		return
	}

	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError(""))
		return
	}

	if req.Subject == "" {
		s.writeError(w, NewBadRequestError("subject is required"))
		return
	}
	if req.MaxMembers == 0 {
		req.MaxMembers = defaultMaxMembers
	}
	if req.MaxMembers < 2 {
		s.writeError(w, NewBadRequestError("group must allow at least two members"))
		return
	}
	if req.MaxMembers < group.MemberCount {
		s.writeError(w, NewBadRequestError("capacity cannot be below the current member count"))
		return
	}

	updated, err := s.db.UpdateGroup(database.UpdateGroupParams{
		GroupId:     groupId,
		Subject:     req.Subject,
		Objective:   req.Objective,
		Location:    req.Location,
		Description: req.Description,
		MaxMembers:  req.MaxMembers,
		MeetingTime: req.MeetingTime,
		MeetingDays: req.MeetingDays,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, NewNotFoundError())
		} else {
			s.writeError(w, NewInternalServerError(err))
		}
		return
	}

	s.writeJson(w, http.StatusOK, apiGroup(updated))
}

func (s *StudyCircleApp) listGroups(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)
	filters := database.GroupFilters{
		Subject:   r.URL.Query().Get("subject"),
		Location:  r.URL.Query().Get("location"),
		Objective: r.URL.Query().Get("objective"),
	}

	dbGroups, err := s.db.ListGroups(filters, page, limit)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	groups := make([]types.Group, 0, len(dbGroups))
	for _, g := range dbGroups {
		groups = append(groups, apiGroup(g))
	}

	s.writeJson(w, http.StatusOK, groups)
}

func (s *StudyCircleApp) myGroups(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	dbGroups, err := s.db.ListGroupsForMember(userId)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	groups := make([]types.Group, 0, len(dbGroups))
	for _, g := range dbGroups {
		groups = append(groups, apiGroup(g))
	}

	s.writeJson(w, http.StatusOK, groups)
}

func (s *StudyCircleApp) getGroup(w http.ResponseWriter, r *http.Request) {
	groupId, err := idParam(r)
	if err != nil {
		s.writeError(w, NewBadRequestError("invalid group id"))
		return
	}

	dbGroup, err := s.db.GetGroupById(groupId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, NewNotFoundError())
		} else {
			s.writeError(w, NewInternalServerError(err))
		}
		return
	}

	members, err := s.db.GetGroupMembers(groupId)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	group := apiGroup(dbGroup)
	group.MemberCount = len(members)
	group.Members = make([]types.User, 0, len(members))
	for _, m := range members {
		group.Members = append(group.Members, apiUser(m))
	}

	s.writeJson(w, http.StatusOK, group)
}

func (s *StudyCircleApp) deleteGroup(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	groupId, err := idParam(r)
	if err != nil {
		s.writeError(w, NewBadRequestError("invalid group id"))
		return
	}

	group, err := s.db.GetGroupById(groupId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, NewNotFoundError())
		} else {
			s.writeError(w, NewInternalServerError(err))
		}
		return
	}

	if group.OwnerId != userId {
		s.writeError(w, NewForbiddenError())
		return
	}

	if err := s.db.DeleteGroup(groupId); err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	if err := s.cs.UnloadGroup(r.Context(), groupId, true); err != nil {
		s.log.Println("unload group from chat server:", err)
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *StudyCircleApp) joinGroup(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	groupId, err := idParam(r)
	if err != nil {
		s.writeError(w, NewBadRequestError("invalid group id"))
		return
	}

	group, err := s.db.GetGroupById(groupId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, NewNotFoundError())
		} else {
			s.writeError(w, NewInternalServerError(err))
		}
		return
	}

	member, err := s.db.IsGroupMember(groupId, userId)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}
	if member {
		s.writeError(w, NewConflictError("you are already a member of this group"))
		return
	}

	members, err := s.db.GetGroupMembers(groupId)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}
	if len(members) >= group.MaxMembers {
		s.writeError(w, NewConflictError("group is full"))
		return
	}

	if err := s.db.AddGroupMember(groupId, userId); err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	user, err := s.db.GetAccountById(userId)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.notifyMembershipChange(r, group, members, user, "member_joined",
		fmt.Sprintf("%s joined %q", user.Name, group.Subject))

	group.MemberCount = len(members) + 1
	s.writeJson(w, http.StatusOK, apiGroup(group))
}

func (s *StudyCircleApp) leaveGroup(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	groupId, err := idParam(r)
	if err != nil {
		s.writeError(w, NewBadRequestError("invalid group id"))
		return
	}

	group, err := s.db.GetGroupById(groupId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, NewNotFoundError())
		} else {
			s.writeError(w, NewInternalServerError(err))
		}
		return
	}

	if group.OwnerId == userId {
		s.writeError(w, NewBadRequestError("the group owner cannot leave, delete the group instead"))
		return
	}

	if err := s.db.RemoveGroupMember(groupId, userId); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, NewBadRequestError("you are not a member of this group"))
		} else {
			s.writeError(w, NewInternalServerError(err))
		}
		return
	}

	user, err := s.db.GetAccountById(userId)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	members, err := s.db.GetGroupMembers(groupId)
	if err != nil {
		s.log.Println("fetch members after leave:", err)
		members = nil
	}

	s.notifyMembershipChange(r, group, members, user, "member_left",
		fmt.Sprintf("%s left %q", user.Name, group.Subject))

	s.writeJson(w, http.StatusNoContent, nil)
}

// notifyMembershipChange records a notification for every remaining member
// and pushes it to the ones currently connected. Failures here never fail
// the request that triggered them.
func (s *StudyCircleApp) notifyMembershipChange(r *http.Request, group database.Group, members []database.User, actor database.User, notificationType, message string) {
	recipients := make([]int, 0, len(members))
	for _, m := range members {
		if m.Id == actor.Id {
			continue
		}
		recipients = append(recipients, m.Id)
	}
	if len(recipients) == 0 {
		return
	}

	data, err := json.Marshal(map[string]interface{}{
		"group_id":   group.Id,
		"group_name": group.Subject,
		"user_id":    actor.Id,
		"user_name":  actor.Name,
	})
	if err != nil {
		s.log.Println("marshal notification data:", err)
		return
	}

	if _, err := s.db.CreateNotificationForUsers(recipients, database.CreateNotificationParams{
		Type:    notificationType,
		Message: message,
		Data:    data,
	}); err != nil {
		s.log.Println("create notifications:", err)
	}

	notification := &types.Notification{
		Type:      notificationType,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	for _, recipient := range recipients {
		s.cs.NotifyUser(recipient, notification)
	}

	if err := s.cs.NotifyGroup(r.Context(), group.Id, notification); err != nil {
		s.log.Println("notify group:", err)
	}
}

func (s *StudyCircleApp) groupMembers(w http.ResponseWriter, r *http.Request) {
	groupId, err := idParam(r)
	if err != nil {
		s.writeError(w, NewBadRequestError("invalid group id"))
		return
	}

	if _, err := s.db.GetGroupById(groupId); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, NewNotFoundError())
		} else {
			s.writeError(w, NewInternalServerError(err))
		}
		return
	}

	dbMembers, err := s.db.GetGroupMembers(groupId)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	members := make([]types.User, 0, len(dbMembers))
	for _, m := range dbMembers {
		members = append(members, apiUser(m))
	}

	s.writeJson(w, http.StatusOK, members)
}

func (s *StudyCircleApp) listNotifications(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	page, limit := pagination(r)
	dbNotifications, err := s.db.ListNotifications(userId, page, limit)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	notifications := make([]types.Notification, 0, len(dbNotifications))
	for _, n := range dbNotifications {
		notifications = append(notifications, apiNotification(n))
	}

	s.writeJson(w, http.StatusOK, notifications)
}

func (s *StudyCircleApp) unreadNotificationCount(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	count, err := s.db.CountUnreadNotifications(userId)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, map[string]int{"count": count})
}

func (s *StudyCircleApp) markAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	if err := s.db.MarkAllNotificationsRead(userId); err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *StudyCircleApp) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	notificationId, err := idParam(r)
	if err != nil {
		s.writeError(w, NewBadRequestError("invalid notification id"))
		return
	}

	if err := s.db.MarkNotificationRead(notificationId, userId); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, NewNotFoundError())
		} else {
			s.writeError(w, NewInternalServerError(err))
		}
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *StudyCircleApp) deleteNotification(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	notificationId, err := idParam(r)
	if err != nil {
		s.writeError(w, NewBadRequestError("invalid notification id"))
		return
	}

	if err := s.db.DeleteNotification(notificationId, userId); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, NewNotFoundError())
		} else {
			s.writeError(w, NewInternalServerError(err))
		}
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *StudyCircleApp) serveWs(w http.ResponseWriter, r *http.Request) {
	id, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	user, err := s.db.GetAccountById(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, NewNotFoundError())
		} else {
			s.writeError(w, NewInternalServerError(err))
		}
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(types.User{
		Id:           user.Id,
		Name:         user.Name,
		EmailAddress: user.EmailAddress,
		Course:       user.Course,
		Semester:     user.Semester,
		Avatar:       user.Avatar,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}, conn, s.cs, s.log, s.stats)

	s.cs.RegisterClient(client)
	go client.WriteLoop()
	go client.ReadLoop()
}
