package asiacell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultBaseURL is the ODP mobile app's API endpoint
	DefaultBaseURL = "https://odpapp.asiacell.com/api"
	apiKey         = "1ccbc4c913bc4ce785a0a2de444aa0d6"

	maxRetries = 2
	retryPause = time.Second
)

// defaultHeaders mimic the Android ODP app
var defaultHeaders = map[string]string{
	"User-Agent":        "okhttp/5.0.0-alpha.2",
	"Content-Type":      "application/json",
	"X-ODP-API-KEY":     apiKey,
	"X-OS-Version":      "11",
	"X-Device-Type":     "[Android][realme][RMX2189 11] [R]",
	"X-ODP-APP-VERSION": "4.2.4",
	"X-FROM-APP":        "odp",
	"X-ODP-CHANNEL":     "mobile",
	"X-SCREEN-TYPE":     "MOBILE",
	"Cache-Control":     "private, max-age=240",
}

// Client talks to the Asiacell ODP API. When a proxy list is loaded,
// every attempt goes out through a randomly picked proxy.
type Client struct {
	baseURL    string
	httpClient *http.Client
	proxies    []string
}

// New creates a client. proxyFile may list proxies one per line as
// ip:port or ip:port:user:pass; a missing file simply disables proxies.
func New(proxyFile string) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		proxies: loadProxies(proxyFile),
	}
	c.httpClient = &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			Proxy: func(*http.Request) (*url.URL, error) {
				return c.randomProxy(), nil
			},
		},
	}
	return c
}

// loadProxies reads the proxy list, skipping blank lines
func loadProxies(path string) []string {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logrus.WithField("path", path).Warn("proxy file not found, proxies disabled")
		return nil
	}
	var proxies []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			proxies = append(proxies, line)
		}
	}
	return proxies
}

// randomProxy picks one proxy per attempt, or nil when none are loaded
func (c *Client) randomProxy() *url.URL {
	if len(c.proxies) == 0 {
		return nil
	}
	raw := c.proxies[rand.Intn(len(c.proxies))]
	parts := strings.Split(raw, ":")
	var proxyURL string
	switch len(parts) {
	case 2:
		proxyURL = fmt.Sprintf("http://%s:%s", parts[0], parts[1])
	case 4:
		proxyURL = fmt.Sprintf("http://%s:%s@%s:%s", parts[2], parts[3], parts[0], parts[1])
	default:
		logrus.WithField("proxy", raw).Warn("invalid proxy format")
		return nil
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		logrus.WithField("proxy", raw).Warn("failed to parse proxy")
		return nil
	}
	return u
}

// NewDeviceID generates a fresh device identifier for a linked account
func NewDeviceID() string {
	return uuid.NewString()
}

// ExtractPID pulls the PID query parameter out of a login nextUrl
func ExtractPID(nextURL string) (string, error) {
	u, err := url.Parse(nextURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse nextUrl: %v", err)
	}
	pid := u.Query().Get("PID")
	if pid == "" {
		return "", fmt.Errorf("nextUrl carries no PID: %s", nextURL)
	}
	return pid, nil
}

// doRequest performs one API call with retries on transport errors.
// The response is returned for header inspection; the body is already
// read into the returned byte slice.
func (c *Client) doRequest(ctx context.Context, method, path string, headers map[string]string, body any) (*http.Response, []byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode request body: %v", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryPause):
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to build request: %v", err)
		}
		for k, v := range defaultHeaders {
			req.Header.Set(k, v)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			logrus.WithError(err).WithField("path", path).Warn("request failed, retrying")
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return resp, data, &APIError{StatusCode: resp.StatusCode, Message: apiMessage(data)}
		}
		return resp, data, nil
	}
	return nil, nil, fmt.Errorf("request to %s failed after %d attempts: %v", path, maxRetries+1, lastErr)
}

// apiMessage digs a human-readable message out of an error body
func apiMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(data))
}

// LoginCookie fetches the login screen and returns its session cookie
func (c *Client) LoginCookie(ctx context.Context) (string, error) {
	resp, _, err := c.doRequest(ctx, http.MethodGet, "/v1/login-screen?lang=ar", nil, nil)
	if err != nil {
		return "", err
	}
	cookie := resp.Header.Get("Set-Cookie")
	if cookie == "" {
		return "", fmt.Errorf("login screen returned no session cookie")
	}
	return cookie, nil
}

// SendLoginCode asks the carrier to text an OTP to the phone number
func (c *Client) SendLoginCode(ctx context.Context, deviceID, cookie, phoneNumber string) (*LoginResponse, error) {
	headers := map[string]string{
		"DeviceID": deviceID,
		"Cookie":   cookie,
	}
	body := map[string]string{
		"username":    phoneNumber,
		"captchaCode": "",
	}
	_, data, err := c.doRequest(ctx, http.MethodPost, "/v1/login?lang=ar", headers, body)
	if err != nil {
		return nil, err
	}
	var login LoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %v", err)
	}
	return &login, nil
}

// ValidateSMSCode exchanges the OTP for the account's token pair
func (c *Client) ValidateSMSCode(ctx context.Context, cookie, deviceID, pid, otpCode string) (*TokenResponse, error) {
	headers := map[string]string{
		"DeviceID": deviceID,
		"Cookie":   cookie,
	}
	body := map[string]string{
		"PID":      pid,
		"token":    apiKey,
		"passcode": otpCode,
	}
	_, data, err := c.doRequest(ctx, http.MethodPost, "/v1/smsvalidation?lang=ar", headers, body)
	if err != nil {
		return nil, err
	}
	var tokens TokenResponse
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %v", err)
	}
	return &tokens, nil
}

// RefreshToken rotates an account's token pair
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	body := map[string]string{
		"refreshToken": refreshToken,
		"token":        apiKey,
	}
	_, data, err := c.doRequest(ctx, http.MethodPost, "/v1/refreshtoken?lang=ar", nil, body)
	if err != nil {
		return nil, err
	}
	var tokens TokenResponse
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %v", err)
	}
	return &tokens, nil
}

// Balance fetches the account's home screen and extracts the main
// balance. The field arrives either as a number or a formatted string.
func (c *Client) Balance(ctx context.Context, accessToken, deviceID, cookie string) (float64, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + accessToken,
		"DeviceID":      deviceID,
		"Cookie":        cookie,
	}
	_, data, err := c.doRequest(ctx, http.MethodGet, "/v2/home?lang=ar", headers, nil)
	if err != nil {
		return 0, err
	}

	var home map[string]json.RawMessage
	if err := json.Unmarshal(data, &home); err != nil {
		return 0, fmt.Errorf("failed to decode home response: %v", err)
	}
	for _, field := range []string{"mainBalance", "balance"} {
		raw, ok := home[field]
		if !ok {
			continue
		}
		balance, err := parseBalance(raw)
		if err != nil {
			return 0, fmt.Errorf("failed to parse %s: %v", field, err)
		}
		return balance, nil
	}
	return 0, fmt.Errorf("home response carries no balance field")
}

// parseBalance accepts 1500, "1500.5" or "1,500 IQD"
func parseBalance(raw json.RawMessage) (float64, error) {
	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		return number, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return 0, fmt.Errorf("unsupported balance value: %s", raw)
	}
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, text)
	if cleaned == "" {
		return 0, fmt.Errorf("no digits in balance value %q", text)
	}
	return strconv.ParseFloat(cleaned, 64)
}

// RechargeOther submits a voucher for another phone number on behalf
// of the sender identified by accessToken.
func (c *Client) RechargeOther(ctx context.Context, voucherCode, targetNumber, accessToken string) (*RechargeResponse, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + accessToken,
	}
	body := map[string]string{
		"voucherNumber": voucherCode,
		"accountNumber": targetNumber,
	}
	_, data, err := c.doRequest(ctx, http.MethodPost, "/v1/recharge-other?lang=ar", headers, body)
	if err != nil {
		return nil, err
	}
	var recharge RechargeResponse
	if err := json.Unmarshal(data, &recharge); err != nil {
		return nil, fmt.Errorf("failed to decode recharge response: %v", err)
	}
	return &recharge, nil
}
