package transport

import "errors"

// Error categories surfaced by a Transport. Bring-up errors
// (auth, chat bind) abort Init and bubble to the Application; steady-state
// errors are logged and dropped inside the transport and never returned.
var (
	// ErrCarrierAuth covers login refused, CAPTCHA cancelled, and 2FA
	// cancelled during Init. Bring-up abort.
	ErrCarrierAuth = errors.New("transport: carrier authentication failed")

	// ErrConfigInvalid covers missing credentials for the selected
	// transport_type.
	ErrConfigInvalid = errors.New("transport: invalid configuration")
)
