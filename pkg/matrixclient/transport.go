package matrixclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/davecgh/go-spew/spew"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// buildURL assembles a client-server API URL. Path segments are escaped
// individually so room ids, user ids and aliases survive their ! # @ :
// characters.
func (c *Client) buildURL(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}

	u := c.Server + c.Prefix
	for _, s := range escaped {
		u += "/" + s
	}
	return u
}

// buildBaseURL assembles a URL outside the client-server prefix (media,
// well-known).
func (c *Client) buildBaseURL(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}

	u := c.Server
	for _, s := range escaped {
		u += "/" + s
	}
	return u
}

// addAuth appends the access token and, for application-service clients,
// the impersonated user id to a URL's query string.
func (c *Client) addAuth(rawURL string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	if c.AccessToken != "" {
		query.Set("access_token", c.AccessToken)
	}
	if c.AppServiceUserID != "" {
		query.Set("user_id", c.AppServiceUserID)
	}
	if len(query) == 0 {
		return rawURL
	}
	return rawURL + "?" + query.Encode()
}

// doRequest is the single chokepoint for every outbound API call. reqBody
// is marshalled to JSON when non-nil; a non-2xx response is decoded into a
// *MatrixError; a 2xx body is decoded into respBody when non-nil.
func (c *Client) doRequest(method, rawURL string, query url.Values, reqBody, respBody interface{}) error {
	return c.doRequestCtx(context.Background(), method, rawURL, query, reqBody, respBody)
}

func (c *Client) doRequestCtx(ctx context.Context, method, rawURL string, query url.Values, reqBody, respBody interface{}) error {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.addAuth(rawURL, query), body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debugf("%s %s", method, rawURL)
	if c.rootLogger.IsLevelEnabled(logrus.TraceLevel) && reqBody != nil {
		c.logger.Trace(spew.Sdump(reqBody))
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, rawURL)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "read response of %s %s", method, rawURL)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		matrixErr := &MatrixError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(data, matrixErr); err != nil || matrixErr.Code == "" {
			matrixErr.Code = ErrCodeUnknown
			matrixErr.Message = string(data)
		}
		return matrixErr
	}

	if respBody != nil {
		if err := json.Unmarshal(data, respBody); err != nil {
			return errors.Wrapf(err, "decode response of %s %s", method, rawURL)
		}
		if c.rootLogger.IsLevelEnabled(logrus.TraceLevel) {
			c.logger.Trace(spew.Sdump(respBody))
		}
	}

	return nil
}

// doRetry runs one API call and retries it on rate limiting for as long
// as the server keeps asking, honouring retry_after_ms when present. Any
// other error fails immediately. The caller builds the URL once, so
// idempotency keys in the path stay stable across attempts.
func (c *Client) doRetry(method, rawURL string, query url.Values, reqBody, respBody interface{}) error {
	for {
		err := c.doRequest(method, rawURL, query, reqBody, respBody)
		if err == nil {
			return nil
		}

		var matrixErr *MatrixError
		if !errors.As(err, &matrixErr) || matrixErr.Code != ErrCodeLimitExceeded {
			return err
		}

		wait := matrixErr.RetryAfter()
		if wait <= 0 {
			wait = DefaultRetryAfter
		}
		c.logger.Infof("rate limited on %s %s, retrying in %v", method, rawURL, wait)
		time.Sleep(wait)
	}
}
