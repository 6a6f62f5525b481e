package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
)

// ServerFingerprint is returned when no device attributes are available.
const ServerFingerprint = "server"

// FingerprintHeader carries the client-computed fingerprint on authenticated calls.
const FingerprintHeader = "X-Device-Fingerprint"

// DeviceAttributes are the environment attributes a client reports about itself.
type DeviceAttributes struct {
	UserAgent           string `json:"user_agent"`
	Language            string `json:"language"`
	TimezoneOffset      int    `json:"timezone_offset"`
	ScreenWidth         int    `json:"screen_width"`
	ScreenHeight        int    `json:"screen_height"`
	ColorDepth          int    `json:"color_depth"`
	HardwareConcurrency *int   `json:"hardware_concurrency,omitempty"`
	MaxTouchPoints      *int   `json:"max_touch_points,omitempty"`
}

// GenerateDeviceFingerprint hashes the attributes in a fixed order.
// Identical attributes always give the identical fingerprint.
func GenerateDeviceFingerprint(attrs *DeviceAttributes) string {
	if attrs == nil {
		return ServerFingerprint
	}

	concurrency := "unknown"
	if attrs.HardwareConcurrency != nil {
		concurrency = strconv.Itoa(*attrs.HardwareConcurrency)
	}
	touchPoints := "0"
	if attrs.MaxTouchPoints != nil {
		touchPoints = strconv.Itoa(*attrs.MaxTouchPoints)
	}

	components := []string{
		attrs.UserAgent,
		attrs.Language,
		strconv.Itoa(attrs.TimezoneOffset),
		strconv.Itoa(attrs.ScreenWidth) + "x" + strconv.Itoa(attrs.ScreenHeight),
		strconv.Itoa(attrs.ColorDepth),
		concurrency,
		touchPoints,
	}

	sum := sha256.Sum256([]byte(strings.Join(components, "|")))
	return hex.EncodeToString(sum[:])
}

// ResolveFingerprint prefers raw attributes over a client-supplied fingerprint string.
func ResolveFingerprint(fingerprint string, attrs *DeviceAttributes) string {
	if attrs != nil {
		return GenerateDeviceFingerprint(attrs)
	}
	if fp := strings.TrimSpace(fingerprint); fp != "" {
		return fp
	}
	return ServerFingerprint
}

// FingerprintFromRequest reads the fingerprint header of an authenticated call.
func FingerprintFromRequest(r *http.Request) string {
	return ResolveFingerprint(r.Header.Get(FingerprintHeader), nil)
}
