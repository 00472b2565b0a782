package service

import (
	"github.com/mssola/useragent"
)

// clientInfo is the parsed shape of a User-Agent header.
type clientInfo struct {
	Device  string
	Browser string
	OS      string
}

const unknownClient = "unknown"

// parseUserAgent classifies the raw User-Agent header into a coarse device
// class plus browser and OS names. Unparseable input degrades to "unknown"
// fields rather than failing; the values are descriptive only.
func parseUserAgent(raw string) clientInfo {
	info := clientInfo{Device: unknownClient, Browser: unknownClient, OS: unknownClient}
	if raw == "" {
		return info
	}
	ua := useragent.New(raw)

	switch {
	case ua.Bot():
		info.Device = "bot"
	case ua.Mobile():
		info.Device = "mobile"
	default:
		info.Device = "desktop"
	}
	if name, _ := ua.Browser(); name != "" {
		info.Browser = name
	}
	if os := ua.OS(); os != "" {
		info.OS = os
	}
	return info
}
