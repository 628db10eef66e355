package checkout

import "errors"

var (
	ErrEmptyCart        = errors.New("cart is empty, nothing to checkout")
	ErrInvalidTotal     = errors.New("cart total must be a positive amount")
	ErrBelowMinimum     = errors.New("cart total is below the minimum chargeable amount")
	ErrNotAuthenticated = errors.New("checkout requires an authenticated session")
	ErrNotConfigured    = errors.New("payment provider is not configured")
	ErrAlreadyInFlight  = errors.New("a checkout is already in progress for this session")
)
