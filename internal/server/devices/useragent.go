// Package devices derives the display attributes of a login session from the
// client's user agent and address.
package devices

import (
	"strings"

	"github.com/dmitrijs2005/perfectkey/internal/server/models"
	"github.com/mssola/useragent"
)

const (
	UnknownDevice = "Unknown Device"
	Unknown       = "Unknown"
)

// Descriptor is what a session records about the client.
type Descriptor struct {
	DeviceInfo      string
	Browser         string
	OperatingSystem string
	SessionType     models.SessionType
}

// Parse never fails; unrecognised agents yield Unknown values and a Web session.
func Parse(userAgent string) Descriptor {
	d := Descriptor{
		DeviceInfo:      UnknownDevice,
		Browser:         Unknown,
		OperatingSystem: Unknown,
		SessionType:     models.SessionTypeWeb,
	}
	if strings.TrimSpace(userAgent) == "" {
		return d
	}

	ua := useragent.New(userAgent)
	if name, _ := ua.Browser(); name != "" {
		d.Browser = name
	}
	if os := strings.TrimSpace(ua.OS()); os != "" {
		d.OperatingSystem = os
	}

	family := platformFamily(userAgent)
	switch {
	case family != "" && d.Browser != Unknown:
		d.DeviceInfo = family + " · " + d.Browser
	case family != "":
		d.DeviceInfo = family
	}

	switch {
	case isTablet(userAgent):
		d.SessionType = models.SessionTypeTablet
	case ua.Mobile():
		d.SessionType = models.SessionTypeMobile
	}
	return d
}

// platformFamily checks mobile platforms first since their agents also
// mention Linux or Mac OS X.
func platformFamily(ua string) string {
	switch {
	case strings.Contains(ua, "Android"):
		return "Android"
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"), strings.Contains(ua, "iOS"):
		return "iOS"
	case strings.Contains(ua, "Windows"):
		return "Windows"
	case strings.Contains(ua, "Mac"):
		return "Mac"
	case strings.Contains(ua, "Linux"):
		return "Linux"
	}
	return ""
}

func isTablet(ua string) bool {
	if strings.Contains(ua, "iPad") || strings.Contains(strings.ToLower(ua), "tablet") {
		return true
	}
	// Android tablets omit the "Mobile" token.
	return strings.Contains(ua, "Android") && !strings.Contains(ua, "Mobile")
}
