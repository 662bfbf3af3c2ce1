package model

import "fmt"

// Platform is the client kind announced by the client-platform header.
type Platform int

const (
	PlatformApp Platform = iota + 1
	PlatformBrowser
	PlatformBrowserDev
)

// ParsePlatform maps a header value onto a Platform.
func ParsePlatform(v string) (Platform, error) {
	switch v {
	case "app":
		return PlatformApp, nil
	case "browser":
		return PlatformBrowser, nil
	case "browser-dev":
		return PlatformBrowserDev, nil
	default:
		return 0, fmt.Errorf("unknown client platform %q", v)
	}
}

func (p Platform) String() string {
	switch p {
	case PlatformApp:
		return "app"
	case PlatformBrowser:
		return "browser"
	case PlatformBrowserDev:
		return "browser-dev"
	default:
		return "unknown"
	}
}
