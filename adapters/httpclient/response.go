// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
)

// Response is a fully-read HTTP response. The body is consumed on the
// worker goroutine so the host callback receives an inert value it can
// inspect without further I/O.
type Response struct {
	StatusCode int         `json:"statusCode"`
	Status     string      `json:"status"`
	Proto      string      `json:"proto"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`

	cookies []*http.Cookie
}

func newResponse(resp *http.Response) (*Response, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Proto:      resp.Proto,
		Header:     resp.Header,
		Body:       body,
		cookies:    resp.Cookies(),
	}, nil
}

// IsSuccess reports whether the status code is in the 2xx range.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// JSON unmarshals the body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// ContentType returns the response media type, without parameters.
func (r *Response) ContentType() string {
	ct := r.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
		return mediaType
	}
	return ct
}

// Cookies returns the cookies the response set.
func (r *Response) Cookies() []*http.Cookie {
	return r.cookies
}
