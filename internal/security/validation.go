package security

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Validator provides input validation functions to prevent injection attacks
type Validator struct {
	// MaxInputLength is the maximum allowed length for text inputs
	MaxInputLength int
	// MaxURLLength is the maximum allowed length for URLs
	MaxURLLength int
	// AllowedSchemes contains the list of allowed URL schemes
	AllowedSchemes []string
}

// NewValidator creates a new input validator with secure defaults
// Complexity: O(1)
func NewValidator() *Validator {
	return &Validator{
		MaxInputLength: 10000,   // 10KB
		MaxURLLength:   2048,    // Standard URL max length
		AllowedSchemes: []string{"http", "https"},
	}
}

// ValidateUserID validates a roster user id to prevent injection attacks
// Complexity: O(n) where n is the length of the user id
func (v *Validator) ValidateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("user id cannot be empty")
	}

	if len(userID) > 64 {
		return fmt.Errorf("user id must be at most 64 characters")
	}

	matched, err := regexp.MatchString(`^[a-zA-Z0-9_-]+$`, userID)
	if err != nil {
		return fmt.Errorf("failed to validate user id: %w", err)
	}

	if !matched {
		return fmt.Errorf("user id can only contain letters, numbers, underscores, and hyphens")
	}

	return nil
}

// ValidateLanguageCode validates a BCP-47-style source or target language
// code (e.g. "en", "he", "ru")
// Complexity: O(1)
func (v *Validator) ValidateLanguageCode(code string) error {
	if code == "" {
		return fmt.Errorf("language code cannot be empty")
	}

	matched, err := regexp.MatchString(`^[a-z]{2,3}(-[A-Z]{2})?$`, code)
	if err != nil {
		return fmt.Errorf("failed to validate language code: %w", err)
	}

	if !matched {
		return fmt.Errorf("language code %q is not a recognized BCP-47 form", code)
	}

	return nil
}

// ValidateURL validates a URL to prevent SSRF and XSS attacks
// Complexity: O(n) where n is the length of the URL
func (v *Validator) ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL cannot be empty")
	}

	if len(urlStr) > v.MaxURLLength {
		return fmt.Errorf("URL is too long (max %d characters)", v.MaxURLLength)
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	// Check scheme
	schemeAllowed := false
	for _, scheme := range v.AllowedSchemes {
		if parsedURL.Scheme == scheme {
			schemeAllowed = true
			break
		}
	}

	if !schemeAllowed {
		return fmt.Errorf("URL scheme not allowed (allowed: %v)", v.AllowedSchemes)
	}

	// Prevent SSRF by blocking private IP ranges
	if parsedURL.Hostname() != "" {
		ip := net.ParseIP(parsedURL.Hostname())
		if ip != nil {
			if isPrivateIP(ip) {
				return fmt.Errorf("URL points to private IP address")
			}
		}
	}

	return nil
}

// ValidateTextInput validates general text input
// Complexity: O(n) where n is the length of the input
func (v *Validator) ValidateTextInput(input string, fieldName string) error {
	if !utf8.ValidString(input) {
		return fmt.Errorf("%s contains invalid UTF-8 characters", fieldName)
	}

	if len(input) > v.MaxInputLength {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, v.MaxInputLength)
	}

	// Check for null bytes (can cause issues in C-based systems)
	if strings.Contains(input, "\x00") {
		return fmt.Errorf("%s contains null bytes", fieldName)
	}

	return nil
}

// isPrivateIP checks if an IP address is in a private range
// Prevents SSRF attacks by blocking requests to internal services
func isPrivateIP(ip net.IP) bool {
	// Check for loopback
	if ip.IsLoopback() {
		return true
	}

	// Check for link-local
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}

	// Check for private ranges
	privateRanges := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16", // Link-local
		"fc00::/7",       // IPv6 unique local
		"fe80::/10",      // IPv6 link-local
	}

	for _, cidr := range privateRanges {
		_, subnet, _ := net.ParseCIDR(cidr)
		if subnet != nil && subnet.Contains(ip) {
			return true
		}
	}

	return false
}

// SanitizeSQL prevents SQL injection by escaping dangerous characters
// NOTE: This should NOT be used as a replacement for parameterized queries
// Use this only for logging or displaying SQL, never for actual queries
// Complexity: O(n) where n is the length of the input
func SanitizeSQL(input string) string {
	// Replace single quotes with two single quotes (SQL escaping)
	sanitized := strings.ReplaceAll(input, "'", "''")
	// Remove null bytes
	sanitized = strings.ReplaceAll(sanitized, "\x00", "")
	return sanitized
}

// ContainsSQLKeywords checks if input contains common SQL keywords
// This is a basic defense-in-depth measure, not a primary security control
// Complexity: O(n*m) where n is input length and m is number of keywords
func ContainsSQLKeywords(input string) bool {
	sqlKeywords := []string{
		"SELECT", "INSERT", "UPDATE", "DELETE", "DROP", "CREATE",
		"ALTER", "EXEC", "EXECUTE", "UNION", "DECLARE", "CAST",
		"SCRIPT", "JAVASCRIPT", "ONERROR", "ONLOAD",
	}

	upperInput := strings.ToUpper(input)

	for _, keyword := range sqlKeywords {
		if strings.Contains(upperInput, keyword) {
			return true
		}
	}

	return false
}
