package fingerprintx

import "strings"

// Device type classifications derived from the user agent.
const (
	DeviceTypeMobile  = "mobile"
	DeviceTypeTablet  = "tablet"
	DeviceTypeDesktop = "desktop"
	DeviceTypeBot     = "bot"
	DeviceTypeUnknown = "unknown"
)

type keywordSet []string

func (k keywordSet) matches(s string) bool {
	for _, word := range k {
		if strings.Contains(s, word) {
			return true
		}
	}
	return false
}

var (
	botKeywords     = keywordSet{"bot", "spider", "crawler", "slurp", "monitor", "validator", "fetcher", "scraper"}
	tabletKeywords  = keywordSet{"tablet", "kindle", "silk"}
	mobileKeywords  = keywordSet{"mobile", "iphone", "windows phone", "blackberry"}
	desktopKeywords = keywordSet{"windows", "macintosh", "mac os x", "linux", "x11", "cros"}
)

// DeviceType classifies a user agent into a coarse device category.
// Order matters: iOS identifiers are unambiguous, Android tablets omit
// the "mobile" keyword that Android phones carry.
func DeviceType(userAgent string) string {
	ua := strings.ToLower(userAgent)
	if ua == "" {
		return DeviceTypeUnknown
	}

	if strings.Contains(ua, "ipad") {
		return DeviceTypeTablet
	}
	if strings.Contains(ua, "iphone") {
		return DeviceTypeMobile
	}
	if botKeywords.matches(ua) {
		return DeviceTypeBot
	}
	if strings.Contains(ua, "android") {
		if strings.Contains(ua, "mobile") {
			return DeviceTypeMobile
		}
		return DeviceTypeTablet
	}
	if tabletKeywords.matches(ua) {
		return DeviceTypeTablet
	}
	if mobileKeywords.matches(ua) {
		return DeviceTypeMobile
	}
	if desktopKeywords.matches(ua) {
		return DeviceTypeDesktop
	}
	return DeviceTypeUnknown
}

// BrowserFamily extracts a coarse browser family from the user agent.
// Only the family participates in fingerprinting: point-release version
// bumps must not rotate a subject's device id.
func BrowserFamily(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case ua == "":
		return ""
	case strings.Contains(ua, "edg/") || strings.Contains(ua, "edge"):
		return "edge"
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		return "opera"
	case strings.Contains(ua, "samsungbrowser"):
		return "samsung"
	case strings.Contains(ua, "firefox"):
		return "firefox"
	case strings.Contains(ua, "chrome") || strings.Contains(ua, "crios"):
		return "chrome"
	case strings.Contains(ua, "safari"):
		return "safari"
	default:
		return "other"
	}
}

// PlatformFamily extracts a coarse OS family from the user agent, used
// as a fallback when the client sends no platform hint.
func PlatformFamily(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "windows"):
		return "windows"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"):
		return "ios"
	case strings.Contains(ua, "mac os x"), strings.Contains(ua, "macintosh"):
		return "macos"
	case strings.Contains(ua, "android"):
		return "android"
	case strings.Contains(ua, "linux"), strings.Contains(ua, "x11"):
		return "linux"
	default:
		return "unknown"
	}
}
