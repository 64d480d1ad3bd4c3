// Package errors provides the coded error type shared by the identity
// service. Each ErrorCode maps to one HTTP status, so handlers can turn any
// domain failure into a response without inspecting its cause.
//
//	err := errors.New(errors.ErrCodeOtpExpired, "OTP expired")
//	status := err.HTTPStatusCode() // 400
//
// Use errors.Is for package sentinels and IsCode / GetCode for coded errors.
package errors
