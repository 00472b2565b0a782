package domain

import "time"

// UnknownLocation marks a session whose IP could not be geolocated. Sessions
// at this value never count toward the suspicious-activity heuristic.
const UnknownLocation = "unknown"

// Session represents a tracked authenticated device/browser instance,
// independent of token lifetime. IsActive transitions true→false exactly
// once and never back.
type Session struct {
	ID             string
	UserID         string
	IPAddress      string
	UserAgent      string // raw User-Agent header
	Device         string // parsed device class (mobile, tablet, desktop, bot, unknown)
	Browser        string
	OS             string
	Location       string // "City, CC" or UnknownLocation
	IsActive       bool
	CreatedAt      time.Time
	LastActivityAt time.Time
}
