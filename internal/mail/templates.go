package mail

import "fmt"

// ActivationMessage builds the account activation email. The link points at
// the frontend, which posts the uid and token back to the API.
func ActivationMessage(to, frontendBaseURL, uid, token string) Message {
	link := fmt.Sprintf("%s/activate/%s/%s/", frontendBaseURL, uid, token)
	return Message{
		To:      to,
		Subject: "Activate your account",
		Body: "Welcome! Confirm your email address to activate your account:\r\n\r\n" +
			link + "\r\n\r\nIf you did not sign up, you can ignore this message.\r\n",
	}
}

// PasswordResetMessage builds the password reset email.
func PasswordResetMessage(to, frontendBaseURL, uid, token string) Message {
	link := fmt.Sprintf("%s/password-reset-confirm/%s/%s/", frontendBaseURL, uid, token)
	return Message{
		To:      to,
		Subject: "Reset your password",
		Body: "A password reset was requested for your account. Follow the link to choose a new password:\r\n\r\n" +
			link + "\r\n\r\nIf you did not request this, you can ignore this message.\r\n",
	}
}
