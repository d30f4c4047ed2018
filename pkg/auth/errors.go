package auth

import "errors"

var (
	// ErrAuthentication means the dashboard rejected the credentials.
	// Fatal: retrying with the same credentials cannot succeed.
	ErrAuthentication = errors.New("auth: credentials rejected")

	// ErrSecondFactorTimeout means the login flow reached the second-factor
	// page and nobody completed it within the bounded wait. Fatal for this
	// run; a human has to act before the next one.
	ErrSecondFactorTimeout = errors.New("auth: second factor not completed in time")

	// ErrSessionProbe means neither the stored session nor the supplied
	// credentials produced a usable session.
	ErrSessionProbe = errors.New("auth: no usable session or credentials")
)
