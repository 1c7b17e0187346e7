package enums

import "fmt"

// Platform identifies the upstream sender of an inbound webhook.
type Platform string

const (
	PlatformGitHub Platform = "github"
	PlatformClerk  Platform = "clerk"
)

var validPlatforms = []Platform{
	PlatformGitHub,
	PlatformClerk,
}

// String implements fmt.Stringer.
func (v Platform) String() string {
	return string(v)
}

// IsValid reports whether the value matches the canonical webhook_platform enum.
func (v Platform) IsValid() bool {
	for _, candidate := range validPlatforms {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParsePlatform converts raw input into Platform.
func ParsePlatform(value string) (Platform, error) {
	for _, candidate := range validPlatforms {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid platform %q", value)
}
