package dynamo

// DynamoDB attribute names used in keys, conditions and update expressions across all repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldUserID              = "user_id"
	fieldEmail               = "email"
	fieldGoogleSub           = "google_sub"
	fieldUpdatedAt           = "updated_at"
	fieldFailedLoginAttempts = "failed_login_attempts"

	fieldIdentity = "identity"
	fieldPurpose  = "purpose"
	fieldOTPID    = "otp_id"
	fieldAttempts = "attempts"
	fieldVerified = "verified"
	fieldTTL      = "ttl"
)

// Global secondary index names.
const (
	indexGoogleSub = "google_sub-index"
)
