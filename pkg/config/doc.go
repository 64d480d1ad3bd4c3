// Package config loads the identity service configuration from the
// environment with cleanenv and validates it up front.
//
// Durations accept ISO 8601 ("P7D", "PT5M") or Go syntax ("15s"). A missing
// JWT_SECRET, or a missing FAST2SMS_API_KEY while the fast2sms driver is
// selected, fails Load so the process never starts half configured.
package config
