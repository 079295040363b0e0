package account

import "errors"

var (
	ErrNotFound          = errors.New("account not found")
	ErrAlreadyExists     = errors.New("account already exists")
	ErrTrialAlreadyUsed  = errors.New("trial already used")
	ErrAlreadyPremium    = errors.New("account already has paid access")
	ErrTrialNotExpired   = errors.New("trial is not expired")
	ErrQuotaExceeded     = errors.New("monthly AI query limit reached")
	ErrNotSubscribed     = errors.New("paid subscription required")
	ErrNoBillingCustomer = errors.New("no billing customer linked to account")

	ErrFailedToGetAccount    = errors.New("failed to get account")
	ErrFailedToCreateAccount = errors.New("failed to create account")
	ErrFailedToUpdateAccount = errors.New("failed to update account")
)
