// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package httpclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	reactorbridge "github.com/buke/reactor-bridge"
)

// Request builds one HTTP call. Setters chain; the first builder error is
// remembered and reported at send time.
type Request struct {
	client *Client
	hc     *http.Client
	rt     runtimeConfig

	method  string
	rawURL  string
	header  http.Header
	query   url.Values
	body    []byte
	timeout time.Duration
	err     error
}

// FilePart is one file in a multipart form.
type FilePart struct {
	FieldName string
	FileName  string
	Data      []byte
}

func newRequest(c *Client, hc *http.Client, rt runtimeConfig, method, rawURL string) *Request {
	return &Request{
		client: c,
		hc:     hc,
		rt:     rt,
		method: method,
		rawURL: rawURL,
		header: make(http.Header),
		query:  make(url.Values),
	}
}

// Header adds a request header.
func (r *Request) Header(key, value string) *Request {
	r.header.Add(key, value)
	return r
}

// Query adds a URL query parameter.
func (r *Request) Query(key, value string) *Request {
	r.query.Add(key, value)
	return r
}

// BasicAuth sets HTTP basic authentication.
func (r *Request) BasicAuth(user, password string) *Request {
	r.header.Set("Authorization", "Basic "+basicAuth(user, password))
	return r
}

// BearerAuth sets a bearer token.
func (r *Request) BearerAuth(token string) *Request {
	r.header.Set("Authorization", "Bearer "+token)
	return r
}

// Timeout bounds this request, overriding the client-level timeout.
func (r *Request) Timeout(d time.Duration) *Request {
	r.timeout = d
	return r
}

// Body sets a raw request body.
func (r *Request) Body(contentType string, data []byte) *Request {
	r.header.Set("Content-Type", contentType)
	r.body = data
	return r
}

// JSON marshals v as the request body.
func (r *Request) JSON(v any) *Request {
	data, err := json.Marshal(v)
	if err != nil {
		if r.err == nil {
			r.err = fmt.Errorf("failed to marshal json body: %w", err)
		}
		return r
	}
	return r.Body("application/json", data)
}

// Form sets a URL-encoded form body.
func (r *Request) Form(values url.Values) *Request {
	return r.Body("application/x-www-form-urlencoded", []byte(values.Encode()))
}

// Multipart sets a multipart/form-data body from fields and files.
func (r *Request) Multipart(fields map[string]string, files ...FilePart) *Request {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := w.WriteField(key, value); err != nil {
			r.setErr(fmt.Errorf("failed to write form field %q: %w", key, err))
			return r
		}
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.FieldName, f.FileName)
		if err != nil {
			r.setErr(fmt.Errorf("failed to create form file %q: %w", f.FieldName, err))
			return r
		}
		if _, err := part.Write(f.Data); err != nil {
			r.setErr(fmt.Errorf("failed to write form file %q: %w", f.FieldName, err))
			return r
		}
	}
	if err := w.Close(); err != nil {
		r.setErr(fmt.Errorf("failed to finish multipart body: %w", err))
		return r
	}
	return r.Body(w.FormDataContentType(), buf.Bytes())
}

func (r *Request) setErr(err error) {
	if r.err == nil {
		r.err = err
	}
}

// build materializes the http.Request.
func (r *Request) build(ctx context.Context) (*http.Request, error) {
	if r.err != nil {
		return nil, r.err
	}
	u := r.rawURL
	if len(r.query) > 0 {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + r.query.Encode()
	}
	body := bytes.NewReader(r.body)
	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for key, values := range r.rt.defaultHeader {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	for key, values := range r.header {
		req.Header[key] = values
	}
	if r.rt.agent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", r.rt.agent)
	}
	return req, nil
}

// do executes the request on the calling goroutine.
func (r *Request) do(ctx context.Context) (*Response, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	req, err := r.build(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := r.hc.Do(req)
	if err != nil {
		return nil, err
	}
	return newResponse(resp)
}

// Send executes the request synchronously. It blocks the calling
// goroutine and must not be used from the host thread while the host is
// expected to stay responsive; that is what SendAsync is for.
func (r *Request) Send(ctx context.Context) (*Response, error) {
	return r.do(ctx)
}

// SendAsync submits the request to the bridge. The response, or the
// terminal error, is delivered to target on the host thread. The caller's
// id keys the Cancel entry point; ids are the caller's to manage.
//
// With GuaranteeOrder set, async requests never overlap; the delivery
// order across requests still follows the bridge's cross-task rule (none
// implied) unless the pool runs a single worker.
func (r *Request) SendAsync(id uint64, target reactorbridge.Target) (reactorbridge.TaskID, error) {
	if r.err != nil {
		return 0, r.err
	}
	ordered := r.rt.guaranteeOrder
	op := func(ctx context.Context) (any, error) {
		if ordered {
			r.client.seqMu.Lock()
			defer r.client.seqMu.Unlock()
		}
		defer r.client.clearPending(id)
		return r.do(ctx)
	}
	return r.client.trackPendingSubmit(id, func() (reactorbridge.TaskID, error) {
		return r.client.bridge.Submit(op, target)
	})
}

func basicAuth(user, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + password))
}
