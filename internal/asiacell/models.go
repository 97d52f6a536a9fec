package asiacell

import "fmt"

// LoginResponse is the carrier's reply to a login request. The nextUrl
// carries the PID needed for SMS validation.
type LoginResponse struct {
	NextURL string `json:"nextUrl"`
	Message string `json:"message"`
}

// TokenResponse carries an access/refresh token pair
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Message      string `json:"message"`
}

// RechargeResponse is the carrier's reply to a voucher submission
type RechargeResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// APIError is a non-2xx reply from the carrier API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("asiacell api: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("asiacell api: status %d", e.StatusCode)
}
