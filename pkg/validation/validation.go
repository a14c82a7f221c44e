package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// DeviceIDRegex validates device ID format
	DeviceIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateDeviceID validates a device ID
func ValidateDeviceID(deviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("device ID is required")
	}
	if len(deviceID) > 100 {
		return fmt.Errorf("device ID is too long (max 100 characters)")
	}
	if !DeviceIDRegex.MatchString(deviceID) {
		return fmt.Errorf("invalid device ID format")
	}
	return nil
}

// ValidateDisplayName validates a human-facing device name
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("display name is required")
	}
	if utf8.RuneCountInString(name) > 64 {
		return fmt.Errorf("display name is too long (max 64 characters)")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("display name contains invalid characters")
	}
	return nil
}

// ValidatePairingToken validates a pairing token secret
func ValidatePairingToken(token string) error {
	if token == "" {
		return fmt.Errorf("pairing token is required")
	}
	if len(token) < 16 {
		return fmt.Errorf("pairing token is too short (min 16 characters)")
	}
	if len(token) > 256 {
		return fmt.Errorf("pairing token is too long (max 256 characters)")
	}
	return nil
}

// ValidateSignalURL validates a signaling server URL
func ValidateSignalURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid URL scheme (must be ws or wss)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateQuality validates quality level
func ValidateQuality(quality string) error {
	validQualities := map[string]bool{
		"low":    true,
		"medium": true,
		"high":   true,
	}
	if !validQualities[quality] {
		return fmt.Errorf("invalid quality level (must be low, medium, or high)")
	}
	return nil
}

// ValidateSensitivity validates analyzer sensitivity
func ValidateSensitivity(sensitivity string) error {
	validLevels := map[string]bool{
		"low":    true,
		"medium": true,
		"high":   true,
	}
	if !validLevels[sensitivity] {
		return fmt.Errorf("invalid sensitivity level (must be low, medium, or high)")
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}
