// Package identity предоставляет клиент для внешнего провайдера идентификации.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ErrEmailExists возвращается при попытке зарегистрировать уже занятый адрес.
var (
	ErrEmailExists = errors.New("email already registered")
	// ErrInvalidToken возвращается, если провайдер не подтвердил переданный токен.
	ErrInvalidToken = errors.New("invalid id token")
)

// APIError описывает ошибку провайдера с сохранением исходного HTTP-статуса.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("identity provider error %d: %s", e.StatusCode, e.Message)
}

// Session содержит результат успешной аутентификации по паролю.
type Session struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
}

// TokenInfo содержит проверенные провайдером данные о владельце токена.
type TokenInfo struct {
	UID   string
	Email string
}

// Client инкапсулирует HTTP-взаимодействие с провайдером идентификации.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewClient создаёт клиент провайдера идентификации по указанному адресу и ключу API.
// Сетевые ошибки и ответы 5xx повторяются ограниченное число раз.
func NewClient(endpoint, apiKey string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil

	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		httpClient: rc.StandardClient(),
	}
}

type providerError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// SignUp создаёт учётную запись у провайдера и возвращает идентификатор субъекта.
func (c *Client) SignUp(ctx context.Context, email, password string) (string, error) {
	var resp struct {
		LocalID string `json:"localId"`
	}

	status, perr, err := c.post(ctx, "accounts:signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return "", err
	}

	if status != http.StatusOK {
		if strings.HasPrefix(perr, "EMAIL_EXISTS") {
			return "", ErrEmailExists
		}
		return "", &APIError{StatusCode: status, Message: perr}
	}

	return resp.LocalID, nil
}

// SignIn проверяет пару email/пароль и возвращает сессию с токенами провайдера.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var resp Session

	status, perr, err := c.post(ctx, "accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		return nil, &APIError{StatusCode: status, Message: perr}
	}

	return &resp, nil
}

// VerifyToken проверяет токен у провайдера и возвращает данные владельца.
func (c *Client) VerifyToken(ctx context.Context, idToken string) (*TokenInfo, error) {
	var resp struct {
		Users []struct {
			LocalID string `json:"localId"`
			Email   string `json:"email"`
		} `json:"users"`
	}

	status, _, err := c.post(ctx, "accounts:lookup", map[string]any{
		"idToken": idToken,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK || len(resp.Users) == 0 {
		return nil, ErrInvalidToken
	}

	return &TokenInfo{
		UID:   resp.Users[0].LocalID,
		Email: resp.Users[0].Email,
	}, nil
}

// post выполняет запрос к провайдеру и возвращает статус ответа,
// сообщение об ошибке провайдера (для не-200 ответов) и транспортную ошибку.
func (c *Client) post(ctx context.Context, method string, body any, out any) (int, string, error) {
	base := c.endpoint
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}

	url := fmt.Sprintf("%s/%s?key=%s", base, method, c.apiKey)

	payload, err := json.Marshal(body)
	if err != nil {
		return 0, "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var pe providerError
		if err := json.NewDecoder(resp.Body).Decode(&pe); err != nil {
			return resp.StatusCode, "", nil
		}
		return resp.StatusCode, pe.Error.Message, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, "", fmt.Errorf("decode response: %w", err)
	}

	return resp.StatusCode, "", nil
}
