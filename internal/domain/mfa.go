package domain

import "context"

// ChallengeContext is the human-facing context attached to a push challenge.
type ChallengeContext struct {
	Chain     ChainName
	RequestID string
	Reason    string
}

// MfaProvider sends push approval challenges. The terminal approve/deny
// decision arrives asynchronously through the approvals callback endpoint.
type MfaProvider interface {
	HasRegisteredDevice(ctx context.Context, deviceID string) (bool, error)
	SendChallenge(ctx context.Context, deviceID string, challenge ChallengeContext) (string, error)
}
