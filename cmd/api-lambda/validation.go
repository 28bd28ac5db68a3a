package main

import (
	"fmt"
	"regexp"
	"strings"
)

// --- Input Validation ---

// uuidRegex matches UUID v4 format: 8-4-4-4-12 lowercase hex with dashes.
var uuidRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// safeFilenameRegex allows alphanumeric, dots, hyphens, underscores, spaces, and parentheses.
var safeFilenameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._ ()-]{0,254}$`)

// allowedVideoExtensions is the upload allowlist. Rekognition only accepts
// MP4 and MOV containers.
var allowedVideoExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
}

func validateJobID(id string) error {
	if !uuidRegex.MatchString(id) {
		return fmt.Errorf("invalid job id: must be a UUID (e.g., a1b2c3d4-e5f6-7890-abcd-ef1234567890)")
	}
	return nil
}

func validateUserID(id string) error {
	if id == "" {
		return fmt.Errorf("user_id is required")
	}
	if len(id) > 128 || strings.ContainsAny(id, "/\\ ") {
		return fmt.Errorf("invalid user_id")
	}
	return nil
}

func validateFilename(name string) error {
	if name == "" {
		return fmt.Errorf("filename is required")
	}
	if strings.Contains(name, "..") || strings.Contains(name, "/") || strings.Contains(name, "\\") {
		return fmt.Errorf("filename contains invalid characters")
	}
	if !safeFilenameRegex.MatchString(name) {
		return fmt.Errorf("filename contains invalid characters; only alphanumeric, dots, hyphens, underscores, spaces, and parentheses allowed")
	}
	dot := strings.LastIndex(name, ".")
	if dot < 0 || !allowedVideoExtensions[strings.ToLower(name[dot:])] {
		return fmt.Errorf("unsupported video format: only .mp4 and .mov are accepted")
	}
	return nil
}
