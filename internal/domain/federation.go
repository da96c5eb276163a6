package domain

import "time"

// FederationCredential is a short-lived role session. It is held in memory for a
// single request and never persisted or returned to callers.
type FederationCredential struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
}

func (c FederationCredential) ExpiredAt(now time.Time) bool {
	return !c.Expiration.After(now)
}

// ConsoleSession is a browser sign-in URL. ExpiresAt equals the backing
// credential's expiration.
type ConsoleSession struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ConsoleAccessRequest struct {
	TenantID        string
	ParticipantID   string
	SessionID       string
	RoleARN         string
	DurationSeconds int32
	Destination     string
}
