package grpc

import (
	"time"

	"github.com/dmitrijs2005/perfectkey/internal/server/models"
	"github.com/dmitrijs2005/perfectkey/internal/server/services"
)

// Wire messages of perfectkey.auth.v1.AuthService. They travel through the
// JSON codec, so the json tags are the contract.

type Empty struct{}

type LoginRequest struct {
	UserName   string `json:"username"`
	Password   string `json:"password"`
	HotelCode  string `json:"hotelCode,omitempty"`
	RememberMe bool   `json:"rememberMe,omitempty"`
}

type UserInfo struct {
	ID               int64  `json:"id"`
	GUID             string `json:"guid"`
	UserName         string `json:"username"`
	FullName         string `json:"fullName"`
	Email            string `json:"email"`
	AvatarURL        string `json:"avatarUrl,omitempty"`
	HotelCode        string `json:"hotelCode"`
	Role             string `json:"role"`
	Status           string `json:"status"`
	TwoFactorEnabled bool   `json:"twoFactorEnabled"`
}

type AuthResponse struct {
	Message           string    `json:"message"`
	Token             string    `json:"token,omitempty"`
	RefreshToken      string    `json:"refreshToken,omitempty"`
	ExpiresAt         time.Time `json:"expiresAt"`
	SessionID         int64     `json:"sessionId,omitempty"`
	RequiresTwoFactor bool      `json:"requiresTwoFactor"`
	Source            string    `json:"source,omitempty"`
	User              *UserInfo `json:"user,omitempty"`
}

type RegisterRequest struct {
	UserName  string `json:"username"`
	Password  string `json:"password"`
	Email     string `json:"email"`
	FullName  string `json:"fullName"`
	HotelCode string `json:"hotelCode,omitempty"`
}

type RegisterResponse struct {
	Message string    `json:"message"`
	User    *UserInfo `json:"user"`
}

type RefreshTokenRequest struct {
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type LogoutResponse struct {
	LoggedOut bool `json:"loggedOut"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type HotelsRequest struct {
	UserName string `json:"username"`
}

type HotelsResponse struct {
	Hotels []models.Hotel `json:"hotels"`
}

type ValidateSessionResponse struct {
	Valid bool `json:"valid"`
}

type CodeRequest struct {
	Code string `json:"code"`
}

type TwoFactorSetupResponse struct {
	Message       string   `json:"message"`
	Secret        string   `json:"secret"`
	AuthURI       string   `json:"authUri"`
	RecoveryCodes []string `json:"recoveryCodes"`
}

type RecoveryCodesResponse struct {
	Message string   `json:"message,omitempty"`
	Codes   []string `json:"codes"`
}

type TargetUserRequest struct {
	UserID int64 `json:"userId"`
}

type ListSessionsRequest struct {
	Page       int    `json:"page"`
	PageSize   int    `json:"pageSize"`
	Sort       string `json:"sort,omitempty"`
	ActiveOnly bool   `json:"activeOnly,omitempty"`
}

type SessionInfo struct {
	ID                  int64      `json:"id"`
	UserID              int64      `json:"userId"`
	DeviceInfo          string     `json:"deviceInfo"`
	Browser             string     `json:"browser"`
	OperatingSystem     string     `json:"operatingSystem"`
	SessionType         string     `json:"sessionType"`
	IPAddress           string     `json:"ipAddress"`
	Location            string     `json:"location"`
	LoginTime           time.Time  `json:"loginTime"`
	LastActivity        time.Time  `json:"lastActivity"`
	LogoutTime          *time.Time `json:"logoutTime,omitempty"`
	IsActive            bool       `json:"isActive"`
	IsCurrent           bool       `json:"isCurrentSession"`
	IsRememberMe        bool       `json:"isRememberMe"`
	IsTwoFactorVerified bool       `json:"isTwoFactorVerified"`
	IsExpired           bool       `json:"isExpired"`
	IsLongLived         bool       `json:"isLongLived"`
	Status              string     `json:"status"`
	TimeAgo             string     `json:"timeAgo"`
	Duration            string     `json:"duration"`
	RiskLevel           string     `json:"riskLevel"`
}

type SessionPageResponse struct {
	Sessions   []SessionInfo `json:"sessions"`
	Total      int           `json:"totalCount"`
	Page       int           `json:"pageNumber"`
	PageSize   int           `json:"pageSize"`
	TotalPages int           `json:"totalPages"`
}

type SessionRequest struct {
	SessionID int64 `json:"sessionId"`
}

type SessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

type CountResponse struct {
	Count int64 `json:"count"`
}

type DeviceStatInfo struct {
	DeviceInfo   string `json:"deviceType"`
	Browser      string `json:"browser"`
	SessionCount int    `json:"sessionCount"`
}

type LocationStatInfo struct {
	Location     string    `json:"location"`
	IPAddress    string    `json:"ipAddress"`
	SessionCount int       `json:"sessionCount"`
	LastAccess   time.Time `json:"lastAccess"`
}

type SessionStatsResponse struct {
	TotalSessions   int                `json:"totalSessions"`
	ActiveSessions  int                `json:"activeSessions"`
	ExpiredSessions int                `json:"expiredSessions"`
	UniqueDevices   int                `json:"uniqueDevices"`
	UniqueLocations int                `json:"uniqueLocations"`
	Devices         []DeviceStatInfo   `json:"deviceStats"`
	Locations       []LocationStatInfo `json:"locationStats"`
}

type HotelSessionsRequest struct {
	HotelGUID  string `json:"hotelGuid"`
	ActiveOnly bool   `json:"activeOnly"`
}

type AvatarUploadResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

type SetAvatarRequest struct {
	Key string `json:"key"`
}

type AvatarURLResponse struct {
	URL string `json:"url"`
}

func userInfo(u *models.User) *UserInfo {
	if u == nil {
		return nil
	}
	return &UserInfo{
		ID:               u.ID,
		GUID:             u.GUID,
		UserName:         u.UserName,
		FullName:         u.FullName,
		Email:            u.Email,
		AvatarURL:        u.AvatarURL,
		HotelCode:        u.HotelCode,
		Role:             u.Role().String(),
		Status:           u.Status.String(),
		TwoFactorEnabled: u.TwoFactorEnabled,
	}
}

func authResponse(r *services.AuthResult) *AuthResponse {
	return &AuthResponse{
		Message:           r.Message,
		Token:             r.Token,
		RefreshToken:      r.RefreshToken,
		ExpiresAt:         r.ExpiresAt,
		SessionID:         r.SessionID,
		RequiresTwoFactor: r.RequiresTwoFactor,
		Source:            string(r.Source),
		User:              userInfo(r.User),
	}
}

func sessionInfo(v services.SessionView) SessionInfo {
	return SessionInfo{
		ID:                  v.ID,
		UserID:              v.UserID,
		DeviceInfo:          v.DeviceInfo,
		Browser:             v.Browser,
		OperatingSystem:     v.OperatingSystem,
		SessionType:         string(v.SessionType),
		IPAddress:           v.IPAddress,
		Location:            v.Location,
		LoginTime:           v.LoginTime,
		LastActivity:        v.LastActivity,
		LogoutTime:          v.LogoutTime,
		IsActive:            v.IsActive,
		IsCurrent:           v.IsCurrent,
		IsRememberMe:        v.IsRememberMe,
		IsTwoFactorVerified: v.IsTwoFactorVerified,
		IsExpired:           v.IsExpired,
		IsLongLived:         v.IsLongLived,
		Status:              v.Status,
		TimeAgo:             v.TimeAgo,
		Duration:            v.Duration,
		RiskLevel:           string(v.RiskLevel),
	}
}

func sessionInfos(views []services.SessionView) []SessionInfo {
	out := make([]SessionInfo, 0, len(views))
	for _, v := range views {
		out = append(out, sessionInfo(v))
	}
	return out
}

func statsResponse(st *services.SessionStats) *SessionStatsResponse {
	res := &SessionStatsResponse{
		TotalSessions:   st.TotalSessions,
		ActiveSessions:  st.ActiveSessions,
		ExpiredSessions: st.ExpiredSessions,
		UniqueDevices:   st.UniqueDevices,
		UniqueLocations: st.UniqueLocations,
		Devices:         make([]DeviceStatInfo, 0, len(st.Devices)),
		Locations:       make([]LocationStatInfo, 0, len(st.Locations)),
	}
	for _, d := range st.Devices {
		res.Devices = append(res.Devices, DeviceStatInfo(d))
	}
	for _, l := range st.Locations {
		res.Locations = append(res.Locations, LocationStatInfo(l))
	}
	return res
}
