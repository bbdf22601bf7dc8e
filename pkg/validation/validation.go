package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// IDRegex validates party and user identifiers (uuids, slugs).
	IDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// ContentTypes lists the catalogue kinds a party may point at.
	ContentTypes = map[string]bool{
		"movie":   true,
		"series":  true,
		"episode": true,
		"anime":   true,
		"live":    true,
	}
)

// ValidatePartyID validates party ID
func ValidatePartyID(partyID string) error {
	return validateID(partyID, "party ID")
}

// ValidateUserID validates user ID
func ValidateUserID(userID string) error {
	return validateID(userID, "user ID")
}

func validateID(id, field string) error {
	if id == "" {
		return fmt.Errorf("%s is required", field)
	}
	if len(id) > 100 {
		return fmt.Errorf("%s is too long (max 100 characters)", field)
	}
	if !IDRegex.MatchString(id) {
		return fmt.Errorf("invalid %s format", field)
	}
	return nil
}

// ValidateRoomName validates the display label of a party
func ValidateRoomName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("room name is required")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("room name contains invalid characters")
	}
	return ValidateStringLength(name, 1, 100, "room name")
}

func ValidateContentID(contentID string) error {
	if err := ValidateNonEmptyString(contentID, "content ID"); err != nil {
		return err
	}
	return ValidateStringLength(contentID, 1, 100, "content ID")
}

func ValidateContentType(contentType string) error {
	if !ContentTypes[contentType] {
		return fmt.Errorf("invalid content type %q", contentType)
	}
	return nil
}

// ValidatePlaybackPosition rejects negative, NaN and infinite positions.
func ValidatePlaybackPosition(seconds float64) error {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return fmt.Errorf("playback position must be a finite number")
	}
	if seconds < 0 {
		return fmt.Errorf("playback position must be >= 0")
	}
	return nil
}

// ValidateOriginX checks the horizontal reaction origin (percent of width).
func ValidateOriginX(x float64) error {
	if math.IsNaN(x) || x < 0 || x > 100 {
		return fmt.Errorf("origin_x must be within [0, 100]")
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateStringLength validates string length in runes
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
