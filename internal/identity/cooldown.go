package identity

// The two cooldown curves are deliberately different and must not be
// unified: resend counts from a pre-increment attempt number, so its first
// attempt waits exactly the base, while email change treats the attempt
// counter as the number of codes already sent.
//
// The exponent is clamped so a runaway attempt counter can never wrap the
// shift and come back around to a shorter wait.
const maxCooldownExponent = 30

// ResendWaitSeconds returns the wait required before verification code
// number attempt+1 may be resent: base * 2^max(attempt-1, 0).
func ResendWaitSeconds(attempt int, baseSeconds int64) int64 {
	exp := attempt - 1
	if exp < 0 {
		exp = 0
	}
	if exp > maxCooldownExponent {
		exp = maxCooldownExponent
	}
	return baseSeconds << uint(exp)
}

// EmailChangeWaitSeconds returns the wait required before the email address
// may be changed again: base * 2^attempt.
func EmailChangeWaitSeconds(attempt int, baseSeconds int64) int64 {
	exp := attempt
	if exp < 0 {
		exp = 0
	}
	if exp > maxCooldownExponent {
		exp = maxCooldownExponent
	}
	return baseSeconds << uint(exp)
}
