package consensus

// AuthenticationFailedError is returned by Writer.Put when the caller's
// secret does not hash to the stored credential's hmac for this db.
type AuthenticationFailedError struct {
	Db string
}

func (e *AuthenticationFailedError) Error() string {
	return "AUTHENTICATION_FAILED: db " + e.Db
}
