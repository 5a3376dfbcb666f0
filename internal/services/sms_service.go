package services

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"
)

var smsHTTPClient = &http.Client{Timeout: 15 * time.Second}

// SMSService sends activation and notification texts through the Eskiz
// gateway. A missing configuration turns sends into logged no-ops so local
// development works without the gateway.
type SMSService struct {
	baseURL  string
	email    string
	password string

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewSMSService constructs an SMSService. Returns nil when no credentials
// are configured; callers treat a nil service as disabled.
func NewSMSService(baseURL, email, password string) *SMSService {
	if email == "" || password == "" {
		return nil
	}
	return &SMSService{baseURL: strings.TrimRight(baseURL, "/"), email: email, password: password}
}

type eskizAuthResponse struct {
	Data struct {
		Token string `json:"token"`
	} `json:"data"`
	Message string `json:"message"`
}

// token lifetime per gateway docs is 30 days; refresh well before that.
const smsTokenLifetime = 20 * 24 * time.Hour

func (s *SMSService) accessToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && time.Now().Before(s.tokenExpiry) {
		return s.token, nil
	}

	body := &strings.Builder{}
	writer := multipart.NewWriter(body)
	_ = writer.WriteField("email", s.email)
	_ = writer.WriteField("password", s.password)
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, s.baseURL+"/auth/login", strings.NewReader(body.String()))
	if err != nil {
		return "", fmt.Errorf("create sms auth request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := smsHTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute sms auth request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read sms auth response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("sms auth failed: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var parsed eskizAuthResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal sms auth response: %w", err)
	}
	if parsed.Data.Token == "" {
		return "", fmt.Errorf("sms auth returned no token: %s", parsed.Message)
	}

	s.token = parsed.Data.Token
	s.tokenExpiry = time.Now().Add(smsTokenLifetime)
	return s.token, nil
}

// Send delivers one text to the phone (digits only, country code included).
func (s *SMSService) Send(phone, message string) error {
	if s == nil {
		log.Printf("[SMS] disabled, skipping send to %s", phone)
		return nil
	}

	token, err := s.accessToken()
	if err != nil {
		return err
	}

	body := &strings.Builder{}
	writer := multipart.NewWriter(body)
	_ = writer.WriteField("mobile_phone", phone)
	_ = writer.WriteField("message", message)
	_ = writer.WriteField("from", "4546")
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, s.baseURL+"/message/sms/send", strings.NewReader(body.String()))
	if err != nil {
		return fmt.Errorf("create sms send request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := smsHTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute sms send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sms send failed: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// SendActivationCode formats and sends the 4-digit activation code.
func (s *SMSService) SendActivationCode(phone, code string) error {
	return s.Send(phone, fmt.Sprintf("Tasdiqlash kodingiz: %s", code))
}
