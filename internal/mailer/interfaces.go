package mailer

// Service dispatches verification codes. Fire-and-forget from the caller's
// perspective; delivery failures are not retried here.
type Service interface {
	SendVerificationCode(toEmail, code string) error
}
