package models

import "errors"

// Failure kinds shared by the broker, dispatcher and providers
var (
	ErrTransientNetwork      = errors.New("transient network failure")
	ErrAuthenticationFailed  = errors.New("authentication failed")
	ErrAuthenticationExpired = errors.New("authentication expired")
	ErrRateLimited           = errors.New("rate limited")
	ErrDuplicateInFlight     = errors.New("duplicate request in flight")
	ErrMalformedUpstreamData = errors.New("malformed upstream data")
	ErrTimeout               = errors.New("timed out")
	ErrBrokerStopped         = errors.New("broker stopped")
)
