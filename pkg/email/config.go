package email

// Config holds email service configuration. The Postmark tokens are optional
// so development environments can run with the dev sender; SenderEmail and
// SupportEmail establish the sender identity and reply-to behavior for all
// outbound mail.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL" envDefault:"no-reply@focusflow.app"`
	SupportEmail         string `env:"SUPPORT_EMAIL" envDefault:"support@focusflow.app"`
}
