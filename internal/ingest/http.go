package ingest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxBody caps how much of a response is read into memory.
const maxBody = 32 << 20

type response struct {
	status int
	body   []byte
}

// attempt performs one HTTP exchange. Transport failures and timeouts come
// back as err; any HTTP status is a response.
func (c *Client) attempt(ctx context.Context, call Call, params url.Values, header http.Header) (response, error) {
	timeout := call.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := c.newRequest(actx, call, params, header)
	if err != nil {
		return response{}, err
	}
	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		c.metrics.ObserveAttempt(c.api, 0, time.Since(start))
		return response{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	c.metrics.ObserveAttempt(c.api, resp.StatusCode, time.Since(start))
	if err != nil {
		return response{}, err
	}
	return response{status: resp.StatusCode, body: body}, nil
}

func (c *Client) newRequest(ctx context.Context, call Call, params url.Values, header http.Header) (*http.Request, error) {
	target := c.baseURL
	if call.Endpoint != "" {
		target += "/" + strings.TrimLeft(call.Endpoint, "/")
	}
	enc := params.Encode()

	var req *http.Request
	var err error
	if call.Method == http.MethodGet || call.Method == http.MethodDelete {
		if enc != "" {
			target += "?" + enc
		}
		req, err = http.NewRequestWithContext(ctx, call.Method, target, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, call.Method, target, strings.NewReader(enc))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

// Graph token error codes: invalid/expired token, session key invalid,
// and the expired-session subcode.
var tokenErrorCodes = map[int]bool{190: true, 102: true, 463: true}

type graphError struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
	} `json:"error"`
	Message string `json:"message"`
}

func isTokenError(body []byte) bool {
	var ge graphError
	if json.Unmarshal(body, &ge) != nil {
		return false
	}
	return tokenErrorCodes[ge.Error.Code] || tokenErrorCodes[ge.Error.ErrorSubcode]
}

// upstreamMessage extracts the human message from a Graph or WooCommerce
// error body, falling back to the raw body.
func upstreamMessage(body []byte) string {
	var ge graphError
	if json.Unmarshal(body, &ge) == nil {
		if ge.Error.Message != "" {
			return ge.Error.Message
		}
		if ge.Message != "" {
			return ge.Message
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 1024 {
		s = s[:1024]
	}
	return s
}
