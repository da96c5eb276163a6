package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Harshitk-cp/tenantops/internal/domain"
)

const maxErrorBody = 512

// SigninClient talks to the console federation endpoint.
type SigninClient struct {
	endpoint   string
	httpClient *http.Client
}

func NewSigninClient(endpoint string, httpClient *http.Client) *SigninClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &SigninClient{
		endpoint:   strings.TrimRight(endpoint, "?"),
		httpClient: httpClient,
	}
}

type signinSession struct {
	SessionID    string `json:"sessionId"`
	SessionKey   string `json:"sessionKey"`
	SessionToken string `json:"sessionToken"`
}

type signinTokenResponse struct {
	SigninToken string `json:"SigninToken"`
}

// GetSigninToken exchanges a credential for a single-use sign-in token valid
// for sessionDuration seconds.
func (c *SigninClient) GetSigninToken(ctx context.Context, cred domain.FederationCredential, sessionDuration int) (string, error) {
	session, err := json.Marshal(signinSession{
		SessionID:    cred.AccessKeyID,
		SessionKey:   cred.SecretAccessKey,
		SessionToken: cred.SessionToken,
	})
	if err != nil {
		return "", &StepError{Step: StepGetSigninToken, Err: fmt.Errorf("marshal session: %w", err)}
	}

	q := url.Values{}
	q.Set("Action", "getSigninToken")
	q.Set("SessionDuration", strconv.Itoa(sessionDuration))
	q.Set("Session", string(session))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", &StepError{Step: StepGetSigninToken, Err: errors.New("create signin token request")}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// *url.Error embeds the request URL, which carries the credential.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return "", &StepError{Step: StepGetSigninToken, Err: fmt.Errorf("signin token request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &StepError{Step: StepGetSigninToken, StatusCode: resp.StatusCode, Err: fmt.Errorf("read signin token response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return "", &StepError{Step: StepGetSigninToken, StatusCode: resp.StatusCode, Err: fmt.Errorf("federation endpoint error: %s", strings.TrimSpace(string(body)))}
	}

	var result signinTokenResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", &StepError{Step: StepGetSigninToken, StatusCode: resp.StatusCode, Err: fmt.Errorf("unmarshal signin token response: %w", err)}
	}
	if result.SigninToken == "" {
		return "", &StepError{Step: StepGetSigninToken, StatusCode: resp.StatusCode, Err: errors.New("federation endpoint returned no signin token")}
	}
	return result.SigninToken, nil
}

// LoginURL composes the console URL that redeems token and lands on destination.
func (c *SigninClient) LoginURL(token, issuer, destination string) (string, error) {
	if _, err := url.ParseRequestURI(destination); err != nil {
		return "", &StepError{Step: StepComposeURL, Err: fmt.Errorf("invalid destination: %w", err)}
	}

	q := url.Values{}
	q.Set("Action", "login")
	q.Set("Issuer", issuer)
	q.Set("Destination", destination)
	q.Set("SigninToken", token)
	return c.endpoint + "?" + q.Encode(), nil
}
