package email

import "errors"

var (
	ErrInvalidConfig = errors.New("invalid email configuration")
	ErrSendFailed    = errors.New("failed to send email")
)
