package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/perfectkey/internal/server/devices"
	"github.com/dmitrijs2005/perfectkey/internal/server/models"
	"github.com/dmitrijs2005/perfectkey/internal/server/repositories/sessions"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const iphoneUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

func loginN(t *testing.T, env *testEnv, user, password string, metas ...RequestMeta) []*AuthResult {
	t.Helper()
	out := make([]*AuthResult, 0, len(metas))
	for _, m := range metas {
		res, err := env.svc.Login(context.Background(), user, password, "", m)
		require.NoError(t, err)
		require.True(t, res.Success, res.Message)
		out = append(out, res)
	}
	return out
}

func TestSessionService_ListSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, newUser{name: "alice", password: "correct-horse"})
	logins := loginN(t, env, "alice", "correct-horse", webMeta, RequestMeta{UserAgent: iphoneUA, IPAddress: "127.0.0.1"}, webMeta)

	page, err := env.sessions.ListSessions(ctx, alice.ID, logins[0].SessionID, sessions.ListFilter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 2)

	page2, err := env.sessions.ListSessions(ctx, alice.ID, logins[0].SessionID, sessions.ListFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page2.Items, 1)

	var current int
	for _, v := range append(page.Items, page2.Items...) {
		if v.IsCurrent {
			current++
			assert.Equal(t, logins[0].SessionID, v.ID)
			assert.Equal(t, StatusCurrent, v.Status)
		}
		assert.Equal(t, "just now", v.TimeAgo)
	}
	assert.Equal(t, 1, current)

	mobile, err := env.sessions.SessionDetail(ctx, alice.ID, logins[1].SessionID, logins[0].SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionTypeMobile, mobile.SessionType)
	assert.Equal(t, devices.Localhost, mobile.Location)
	assert.Equal(t, RiskLow, mobile.RiskLevel)
	assert.Equal(t, StatusActive, mobile.Status)
}

func TestSessionService_Ownership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, newUser{name: "alice", password: "correct-horse"})
	env.createUser(t, newUser{name: "bob", password: "bob-password"})
	bob := loginN(t, env, "bob", "bob-password", webMeta)[0]

	_, err := env.sessions.SessionDetail(ctx, alice.ID, bob.SessionID, 0)
	assert.Error(t, err)

	ok, err := env.sessions.LogoutSession(ctx, alice.ID, bob.SessionID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, env.loadSession(t, bob.SessionID).IsActive)

	ok, err = env.sessions.LogoutSession(ctx, bob.User.ID, bob.SessionID)
	require.NoError(t, err)
	assert.True(t, ok)

	v, err := env.sessions.SessionDetail(ctx, bob.User.ID, bob.SessionID, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusLoggedOut, v.Status)
	assert.NotNil(t, v.LogoutTime)
}

func TestSessionService_LogoutOthersAndAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, newUser{name: "alice", password: "correct-horse"})
	logins := loginN(t, env, "alice", "correct-horse", webMeta, webMeta, webMeta)

	n, err := env.sessions.LogoutOtherSessions(ctx, alice.ID, logins[1].SessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.True(t, env.loadSession(t, logins[1].SessionID).IsActive)
	assert.False(t, env.loadSession(t, logins[0].SessionID).IsActive)

	n, err = env.sessions.LogoutAllSessions(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = env.sessions.LogoutAllSessions(ctx, alice.ID)
	require.NoError(t, err)
	assert.Zero(t, n, "deactivation is idempotent")
}

func TestSessionService_AdminLogoutUserSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.createUser(t, newUser{name: "root", role: models.UserTypeSuperAdmin})
	env.createUser(t, newUser{name: "bob", password: "bob-password"})
	logins := loginN(t, env, "bob", "bob-password", webMeta, webMeta)

	n, err := env.sessions.AdminLogoutUserSessions(ctx, admin.ID, logins[0].User.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ok, err := env.svc.ValidateSession(ctx, logins[1].Token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionService_Stats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, newUser{name: "alice", password: "correct-horse"})
	logins := loginN(t, env, "alice", "correct-horse",
		webMeta, webMeta, RequestMeta{UserAgent: iphoneUA, IPAddress: "127.0.0.1"}, RequestMeta{})

	_, err := env.svc.RevokeCurrent(ctx, logins[3].Token)
	require.NoError(t, err)

	st, err := env.sessions.Stats(ctx, alice.ID)
	require.NoError(t, err)

	assert.Equal(t, 4, st.TotalSessions)
	assert.Equal(t, 3, st.ActiveSessions)
	assert.Equal(t, 0, st.ExpiredSessions)
	assert.Equal(t, 2, st.UniqueDevices)
	assert.Equal(t, 2, st.UniqueLocations)

	require.Len(t, st.Devices, 2)
	assert.Equal(t, 2, st.Devices[0].SessionCount)
	assert.Equal(t, "Chrome", st.Devices[0].Browser)

	locations := map[string]int{}
	for _, l := range st.Locations {
		locations[l.Location] = l.SessionCount
	}
	want := map[string]int{devices.UnknownLocation: 2, devices.Localhost: 1}
	if diff := cmp.Diff(want, locations); diff != "" {
		t.Errorf("location stats mismatch (-want +got):\n%s", diff)
	}
}

func TestSessionService_HotelSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, newUser{name: "alice", password: "correct-horse"})
	bob := env.createUser(t, newUser{name: "bob", password: "bob-password"})
	env.createUser(t, newUser{name: "carol", password: "carol-password"})

	const hotel = "0b7d4a52-54f4-4a8c-8d0e-2f0c1f6d9c11"
	for _, id := range []int64{alice.ID, bob.ID} {
		_, err := env.db.ExecContext(ctx, `INSERT INTO user_hotels (user_id, hotel_guid, hotel_code) VALUES (?, ?, ?)`, id, hotel, "H1")
		require.NoError(t, err)
	}

	loginN(t, env, "alice", "correct-horse", webMeta)
	bobLogins := loginN(t, env, "bob", "bob-password", webMeta, webMeta)
	loginN(t, env, "carol", "carol-password", webMeta)
	_, err := env.svc.RevokeCurrent(ctx, bobLogins[0].Token)
	require.NoError(t, err)

	active, err := env.sessions.HotelSessions(ctx, hotel, true)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	all, err := env.sessions.HotelSessions(ctx, hotel, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	for _, v := range all {
		assert.Contains(t, []int64{alice.ID, bob.ID}, v.UserID)
		assert.False(t, v.IsCurrent)
	}
}

func TestViewOf_RiskAndStatus(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	base := models.LoginSession{
		ID:           7,
		IPAddress:    "203.0.113.5",
		Location:     "Hanoi, Vietnam",
		LoginTime:    now.Add(-time.Hour),
		LastActivity: now.Add(-5 * time.Minute),
		TokenExpiry:  now.Add(time.Hour),
		IsActive:     true,
	}

	tests := []struct {
		name   string
		mutate func(s *models.LoginSession)
		risk   RiskLevel
		status string
	}{
		{"fresh", func(*models.LoginSession) {}, RiskLow, StatusActive},
		{"unknown location", func(s *models.LoginSession) { s.Location = devices.UnknownLocation }, RiskHigh, StatusActive},
		{"unknown ip", func(s *models.LoginSession) { s.IPAddress = UnknownIP }, RiskHigh, StatusActive},
		{"long lived", func(s *models.LoginSession) { s.LoginTime = now.Add(-48 * time.Hour) }, RiskMedium, StatusActive},
		{"expired", func(s *models.LoginSession) { s.TokenExpiry = now.Add(-time.Minute) }, RiskLow, StatusExpired},
		{"logged out", func(s *models.LoginSession) {
			s.IsActive = false
			at := now.Add(-10 * time.Minute)
			s.LogoutTime = &at
		}, RiskLow, StatusLoggedOut},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base
			tt.mutate(&s)
			v := viewOf(&s, false, now)
			assert.Equal(t, tt.risk, v.RiskLevel)
			assert.Equal(t, tt.status, v.Status)
			assert.Equal(t, devices.Unknown, v.Browser)
			assert.Equal(t, models.SessionTypeWeb, v.SessionType)
		})
	}

	v := viewOf(&base, true, now)
	assert.Equal(t, StatusCurrent, v.Status)
	assert.Equal(t, "5 minutes ago", v.TimeAgo)
	assert.Equal(t, "1 hour 0 minutes", v.Duration)
}

func TestTimeAgo(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{time.Minute, "1 minute ago"},
		{59 * time.Minute, "59 minutes ago"},
		{3 * time.Hour, "3 hours ago"},
		{25 * time.Hour, "1 day ago"},
		{29 * 24 * time.Hour, "29 days ago"},
		{65 * 24 * time.Hour, "2 months ago"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TimeAgo(now.Add(-tt.ago), now), tt.ago.String())
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{-time.Minute, "0 minutes"},
		{42 * time.Minute, "42 minutes"},
		{61 * time.Minute, "1 hour 1 minute"},
		{50 * time.Hour, "2 days 2 hours"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.d))
	}
}
