package mailer

import (
	"fmt"

	"github.com/taskbounty/marketplace/pkg/logger"
)

type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) SendVerificationCode(toEmail, code string) error {
	logger.Info("[DEV MAIL] Verification code",
		"to", toEmail,
		"code", code,
	)

	fmt.Printf("\n"+
		"=================================================================\n"+
		"VERIFICATION EMAIL (DEV MODE)\n"+
		"=================================================================\n"+
		"To: %s\n"+
		"Subject: Verify your TaskBounty account\n"+
		"\n"+
		"Verification code: %s\n"+
		"=================================================================\n\n",
		toEmail, code)

	return nil
}
