package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Error reports a missing or invalid configuration value. It is fatal at
// startup: commands return it before any other component is built.
type Error struct {
	// Key is the env var or setting at fault.
	Key string
	// Reason describes what is wrong with it.
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Key, e.Reason)
}

// Missing returns an *Error for a required key that is unset.
func Missing(key, hint string) *Error {
	reason := "required but not set"
	if hint != "" {
		reason += " (" + hint + ")"
	}
	return &Error{Key: key, Reason: reason}
}

// String returns the value of key, or fallback if unset or blank.
func String(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// FirstString returns the first non-blank value among keys, or fallback.
func FirstString(fallback string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return fallback
}

// Int returns the integer value of key, or fallback if unset or unparseable.
func Int(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return fallback
}

// Float32 returns the float32 value of key, or fallback if unset or unparseable.
func Float32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}

// Duration returns the duration value of key, or fallback if unset or
// unparseable. A bare number is read as seconds.
func Duration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	return fallback
}

// Bool returns the boolean value of key, or fallback if unset or unparseable.
func Bool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}
