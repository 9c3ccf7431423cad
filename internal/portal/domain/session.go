package domain

import (
	"regexp"
	"time"
)

// UserSession is one concurrent login. TokenHash is the fingerprint of the
// opaque session token held by the client.
type UserSession struct {
	ID        string
	UserID    string
	TokenHash string
	IPAddress string
	UserAgent string
	ExpiresAt time.Time
	IsActive  bool
	CreatedAt time.Time
}

// Live reports whether the session is active and unexpired at now.
func (s UserSession) Live(now time.Time) bool {
	return s.IsActive && s.ExpiresAt.After(now)
}

// DeviceInfo is an advisory, display-only classification of a user agent.
type DeviceInfo struct {
	OS         string `json:"os"`
	Browser    string `json:"browser"`
	DeviceType string `json:"device_type"`
	IP         string `json:"ip"`
}

const unknownDevice = "Unknown"

var (
	uaAndroid = regexp.MustCompile(`(?i)android`)
	uaIOS     = regexp.MustCompile(`(?i)iphone|ipad|ipod`)
	uaWindows = regexp.MustCompile(`(?i)windows`)
	uaMac     = regexp.MustCompile(`(?i)macintosh|mac os x`)
	uaLinux   = regexp.MustCompile(`(?i)linux`)

	uaEdge    = regexp.MustCompile(`(?i)edge|edg/`)
	uaOpera   = regexp.MustCompile(`(?i)opera|opr/`)
	uaChrome  = regexp.MustCompile(`(?i)chrome`)
	uaFirefox = regexp.MustCompile(`(?i)firefox`)
	uaSafari  = regexp.MustCompile(`(?i)safari`)

	uaMobile = regexp.MustCompile(`(?i)mobile`)
	uaTablet = regexp.MustCompile(`(?i)tablet|ipad`)
)

// ParseDeviceInfo classifies a user agent with fixed keyword matching.
// Mobile platforms are matched before desktop ones because their user agents
// also mention Linux or Mac OS X.
func ParseDeviceInfo(userAgent, ip string) DeviceInfo {
	info := DeviceInfo{OS: unknownDevice, Browser: unknownDevice, DeviceType: "Desktop", IP: ip}
	if info.IP == "" {
		info.IP = unknownDevice
	}

	switch {
	case uaAndroid.MatchString(userAgent):
		info.OS = "Android"
	case uaIOS.MatchString(userAgent):
		info.OS = "iOS"
	case uaWindows.MatchString(userAgent):
		info.OS = "Windows"
	case uaMac.MatchString(userAgent):
		info.OS = "macOS"
	case uaLinux.MatchString(userAgent):
		info.OS = "Linux"
	}

	switch {
	case uaEdge.MatchString(userAgent):
		info.Browser = "Edge"
	case uaOpera.MatchString(userAgent):
		info.Browser = "Opera"
	case uaChrome.MatchString(userAgent):
		info.Browser = "Chrome"
	case uaFirefox.MatchString(userAgent):
		info.Browser = "Firefox"
	case uaSafari.MatchString(userAgent):
		info.Browser = "Safari"
	}

	switch {
	case uaTablet.MatchString(userAgent):
		info.DeviceType = "Tablet"
	case uaMobile.MatchString(userAgent):
		info.DeviceType = "Mobile"
	}

	return info
}
