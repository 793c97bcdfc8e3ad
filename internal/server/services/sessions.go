package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/perfectkey/internal/common"
	"github.com/dmitrijs2005/perfectkey/internal/logging"
	"github.com/dmitrijs2005/perfectkey/internal/server/devices"
	"github.com/dmitrijs2005/perfectkey/internal/server/models"
	"github.com/dmitrijs2005/perfectkey/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/perfectkey/internal/server/repositories/sessions"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

const (
	StatusCurrent   = "Current session"
	StatusActive    = "Active"
	StatusExpired   = "Expired"
	StatusLoggedOut = "Logged out"
)

// SessionView is a session as shown to its owner or an administrator.
// Token material is never part of it.
type SessionView struct {
	ID                  int64
	UserID              int64
	DeviceInfo          string
	Browser             string
	OperatingSystem     string
	SessionType         models.SessionType
	IPAddress           string
	Location            string
	LoginTime           time.Time
	LastActivity        time.Time
	LogoutTime          *time.Time
	IsActive            bool
	IsCurrent           bool
	IsRememberMe        bool
	IsTwoFactorVerified bool
	IsExpired           bool
	IsLongLived         bool
	Status              string
	TimeAgo             string
	Duration            string
	RiskLevel           RiskLevel
}

type SessionPage struct {
	Items      []SessionView
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

type DeviceStat struct {
	DeviceInfo   string
	Browser      string
	SessionCount int
}

type LocationStat struct {
	Location     string
	IPAddress    string
	SessionCount int
	LastAccess   time.Time
}

type SessionStats struct {
	TotalSessions   int
	ActiveSessions  int
	ExpiredSessions int
	UniqueDevices   int
	UniqueLocations int
	Devices         []DeviceStat
	Locations       []LocationStat
}

// SessionService lists and ends sessions on behalf of their owner or an
// administrator. Ownership is always checked against the session row.
type SessionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	now         func() time.Time
}

func NewSessionService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *SessionService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &SessionService{
		db:          db,
		repomanager: m,
		logger:      logger.With("module", "session_service"),
		now:         time.Now,
	}
}

// ListSessions returns one page of userID's sessions. currentSessionID marks
// the caller's own session.
func (s *SessionService) ListSessions(ctx context.Context, userID, currentSessionID int64, f sessions.ListFilter) (*SessionPage, error) {
	items, total, err := s.repomanager.Sessions(s.db).ListForUser(ctx, userID, f)
	if err != nil {
		return nil, err
	}

	page, size := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = sessions.DefaultPageSize
	}
	if size > sessions.MaxPageSize {
		size = sessions.MaxPageSize
	}

	now := s.now()
	res := &SessionPage{
		Items:      make([]SessionView, 0, len(items)),
		Total:      total,
		Page:       page,
		PageSize:   size,
		TotalPages: (total + size - 1) / size,
	}
	for i := range items {
		res.Items = append(res.Items, viewOf(&items[i], items[i].ID == currentSessionID, now))
	}
	return res, nil
}

// SessionDetail returns the session only when it belongs to userID.
func (s *SessionService) SessionDetail(ctx context.Context, userID, sessionID, currentSessionID int64) (*SessionView, error) {
	sess, err := s.owned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	v := viewOf(sess, sess.ID == currentSessionID, s.now())
	return &v, nil
}

// LogoutSession ends one of userID's sessions. Sessions of other users are
// reported as not found.
func (s *SessionService) LogoutSession(ctx context.Context, userID, sessionID int64) (bool, error) {
	sess, err := s.owned(ctx, userID, sessionID)
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := s.repomanager.Sessions(s.db).Deactivate(ctx, sess.ID, s.now()); err != nil {
		return false, err
	}
	s.logger.Info(ctx, "session ended by owner", "user_id", userID, "session_id", sess.ID)
	return true, nil
}

// LogoutOtherSessions ends every session of userID except currentSessionID
// and returns how many were ended.
func (s *SessionService) LogoutOtherSessions(ctx context.Context, userID, currentSessionID int64) (int64, error) {
	n, err := s.repomanager.Sessions(s.db).DeactivateAllForUser(ctx, userID, &currentSessionID, s.now())
	if err != nil {
		return 0, err
	}
	s.logger.Info(ctx, "other sessions ended", "user_id", userID, "count", n)
	return n, nil
}

func (s *SessionService) LogoutAllSessions(ctx context.Context, userID int64) (int64, error) {
	n, err := s.repomanager.Sessions(s.db).DeactivateAllForUser(ctx, userID, nil, s.now())
	if err != nil {
		return 0, err
	}
	s.logger.Info(ctx, "all sessions ended", "user_id", userID, "count", n)
	return n, nil
}

func (s *SessionService) AdminLogoutUserSessions(ctx context.Context, adminID, targetUserID int64) (int64, error) {
	n, err := s.repomanager.Sessions(s.db).DeactivateAllForUser(ctx, targetUserID, nil, s.now())
	if err != nil {
		return 0, err
	}
	s.logger.Info(ctx, "sessions ended by admin", "admin_id", adminID, "user_id", targetUserID, "count", n)
	return n, nil
}

// HotelSessions lists the sessions of every user assigned to hotelGUID.
func (s *SessionService) HotelSessions(ctx context.Context, hotelGUID string, activeOnly bool) ([]SessionView, error) {
	items, err := s.repomanager.Sessions(s.db).ListForHotel(ctx, hotelGUID, activeOnly)
	if err != nil {
		return nil, err
	}
	now := s.now()
	views := make([]SessionView, 0, len(items))
	for i := range items {
		views = append(views, viewOf(&items[i], false, now))
	}
	return views, nil
}

// Stats summarises userID's sessions. Device and location breakdowns cover
// active sessions only.
func (s *SessionService) Stats(ctx context.Context, userID int64) (*SessionStats, error) {
	all, err := s.repomanager.Sessions(s.db).ListAllForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	st := &SessionStats{TotalSessions: len(all)}

	devicesByKey := map[string]*DeviceStat{}
	locationsByKey := map[string]*LocationStat{}
	for i := range all {
		sess := &all[i]
		if sess.IsExpired(now) {
			st.ExpiredSessions++
		}
		if !sess.IsActive {
			continue
		}
		st.ActiveSessions++

		d, ok := devicesByKey[sess.DeviceInfo]
		if !ok {
			d = &DeviceStat{DeviceInfo: sess.DeviceInfo, Browser: firstNonEmpty(sess.Browser, devices.Unknown)}
			devicesByKey[sess.DeviceInfo] = d
		}
		d.SessionCount++

		l, ok := locationsByKey[sess.Location]
		if !ok {
			l = &LocationStat{Location: sess.Location, IPAddress: sess.IPAddress}
			locationsByKey[sess.Location] = l
		}
		l.SessionCount++
		if sess.LastActivity.After(l.LastAccess) {
			l.LastAccess = sess.LastActivity
		}
	}

	st.UniqueDevices = len(devicesByKey)
	st.UniqueLocations = len(locationsByKey)
	for _, d := range devicesByKey {
		st.Devices = append(st.Devices, *d)
	}
	for _, l := range locationsByKey {
		st.Locations = append(st.Locations, *l)
	}
	sort.Slice(st.Devices, func(i, j int) bool {
		if st.Devices[i].SessionCount != st.Devices[j].SessionCount {
			return st.Devices[i].SessionCount > st.Devices[j].SessionCount
		}
		return st.Devices[i].DeviceInfo < st.Devices[j].DeviceInfo
	})
	sort.Slice(st.Locations, func(i, j int) bool {
		if st.Locations[i].SessionCount != st.Locations[j].SessionCount {
			return st.Locations[i].SessionCount > st.Locations[j].SessionCount
		}
		return st.Locations[i].Location < st.Locations[j].Location
	})
	return st, nil
}

func (s *SessionService) owned(ctx context.Context, userID, sessionID int64) (*models.LoginSession, error) {
	sess, err := s.repomanager.Sessions(s.db).GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, common.ErrorNotFound
	}
	return sess, nil
}

func viewOf(sess *models.LoginSession, current bool, now time.Time) SessionView {
	v := SessionView{
		ID:                  sess.ID,
		UserID:              sess.UserID,
		DeviceInfo:          sess.DeviceInfo,
		Browser:             firstNonEmpty(sess.Browser, devices.Unknown),
		OperatingSystem:     firstNonEmpty(sess.OperatingSystem, devices.Unknown),
		SessionType:         sess.SessionType,
		IPAddress:           sess.IPAddress,
		Location:            sess.Location,
		LoginTime:           sess.LoginTime,
		LastActivity:        sess.LastActivity,
		LogoutTime:          sess.LogoutTime,
		IsActive:            sess.IsActive,
		IsCurrent:           current,
		IsRememberMe:        sess.IsRememberMe,
		IsTwoFactorVerified: sess.IsTwoFactorVerified,
		IsExpired:           sess.IsExpired(now),
		IsLongLived:         sess.IsLongLived(now),
		TimeAgo:             TimeAgo(lastSeen(sess), now),
		Duration:            FormatDuration(sess.Duration(now)),
		RiskLevel:           riskOf(sess, now),
	}
	if v.SessionType == "" {
		v.SessionType = models.SessionTypeWeb
	}
	switch {
	case !sess.IsActive:
		v.Status = StatusLoggedOut
	case current:
		v.Status = StatusCurrent
	case v.IsExpired:
		v.Status = StatusExpired
	default:
		v.Status = StatusActive
	}
	return v
}

func lastSeen(sess *models.LoginSession) time.Time {
	if sess.LastActivity.IsZero() {
		return sess.LoginTime
	}
	return sess.LastActivity
}

func riskOf(sess *models.LoginSession, now time.Time) RiskLevel {
	switch {
	case sess.Location == devices.UnknownLocation, sess.IPAddress == UnknownIP:
		return RiskHigh
	case sess.IsLongLived(now):
		return RiskMedium
	}
	return RiskLow
}

// TimeAgo renders how long ago t was, in whole units.
func TimeAgo(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d/time.Minute), "minute") + " ago"
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour") + " ago"
	case d < 30*24*time.Hour:
		return plural(int(d/(24*time.Hour)), "day") + " ago"
	}
	return plural(int(d/(30*24*time.Hour)), "month") + " ago"
}

// FormatDuration renders d with its two most significant units.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d / (24 * time.Hour))
	hours := int(d/time.Hour) % 24
	minutes := int(d/time.Minute) % 60
	switch {
	case days > 0:
		return plural(days, "day") + " " + plural(hours, "hour")
	case hours > 0:
		return plural(hours, "hour") + " " + plural(minutes, "minute")
	}
	return plural(minutes, "minute")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
