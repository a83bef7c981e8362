// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"
)

// Config builds the underlying HTTP transport. Setters chain and collect
// the first error; Build reports it.
type Config struct {
	agent          string
	defaultHeader  http.Header
	cookieStore    bool
	proxyURL       string
	proxyUser      string
	proxyPassword  string
	rootCAs        *x509.CertPool
	clientCerts    []tls.Certificate
	acceptInvalid  bool
	timeout        time.Duration
	connectTimeout time.Duration
	httpsOnly      bool
	guaranteeOrder bool
	err            error
}

// runtimeConfig is the part of the configuration the client consults per
// request rather than baking into the transport.
type runtimeConfig struct {
	agent          string
	defaultHeader  http.Header
	httpsOnly      bool
	guaranteeOrder bool
}

// NewConfig returns a config with the defaults the original transport
// uses: ordered async requests, no timeouts, system roots.
func NewConfig() *Config {
	return &Config{
		defaultHeader:  make(http.Header),
		guaranteeOrder: true,
	}
}

// Agent sets the User-Agent header sent with every request.
func (c *Config) Agent(agent string) *Config {
	c.agent = agent
	return c
}

// DefaultHeader adds a header sent with every request.
func (c *Config) DefaultHeader(key, value string) *Config {
	c.defaultHeader.Add(key, value)
	return c
}

// CookieStore enables an in-memory cookie jar shared by all requests.
func (c *Config) CookieStore(enabled bool) *Config {
	c.cookieStore = enabled
	return c
}

// Proxy routes all requests through the given proxy URL.
func (c *Config) Proxy(rawURL string) *Config {
	c.proxyURL = rawURL
	return c
}

// ProxyWithCredentials routes all requests through an authenticated proxy.
func (c *Config) ProxyWithCredentials(rawURL, user, password string) *Config {
	c.proxyURL = rawURL
	c.proxyUser = user
	c.proxyPassword = password
	return c
}

// AddRootCertificate appends a PEM root certificate to the trust pool.
func (c *Config) AddRootCertificate(pem []byte) *Config {
	if c.rootCAs == nil {
		c.rootCAs = x509.NewCertPool()
	}
	if !c.rootCAs.AppendCertsFromPEM(pem) && c.err == nil {
		c.err = fmt.Errorf("invalid root certificate")
	}
	return c
}

// Certificate sets a PEM client certificate and key for mutual TLS.
func (c *Config) Certificate(certPEM, keyPEM []byte) *Config {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		if c.err == nil {
			c.err = fmt.Errorf("invalid client certificate: %w", err)
		}
		return c
	}
	c.clientCerts = append(c.clientCerts, cert)
	return c
}

// AcceptInvalidCerts disables server certificate and hostname
// verification. For test endpoints only.
func (c *Config) AcceptInvalidCerts(enabled bool) *Config {
	c.acceptInvalid = enabled
	return c
}

// Timeout bounds each request end to end, unless the request overrides it.
func (c *Config) Timeout(d time.Duration) *Config {
	c.timeout = d
	return c
}

// ConnectTimeout bounds connection establishment.
func (c *Config) ConnectTimeout(d time.Duration) *Config {
	c.connectTimeout = d
	return c
}

// HTTPSOnly rejects plain-http request URLs.
func (c *Config) HTTPSOnly(enabled bool) *Config {
	c.httpsOnly = enabled
	return c
}

// GuaranteeOrder serializes async requests so they never overlap. Enabled
// by default.
func (c *Config) GuaranteeOrder(enabled bool) *Config {
	c.guaranteeOrder = enabled
	return c
}

// build constructs the http.Client and the per-request runtime config.
func (c *Config) build() (*http.Client, runtimeConfig, error) {
	rt := runtimeConfig{
		agent:          c.agent,
		defaultHeader:  c.defaultHeader.Clone(),
		httpsOnly:      c.httpsOnly,
		guaranteeOrder: c.guaranteeOrder,
	}
	if c.err != nil {
		return nil, rt, c.err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if c.connectTimeout > 0 {
		transport.DialContext = (&net.Dialer{Timeout: c.connectTimeout}).DialContext
	}
	if c.rootCAs != nil || len(c.clientCerts) > 0 || c.acceptInvalid {
		transport.TLSClientConfig = &tls.Config{
			RootCAs:            c.rootCAs,
			Certificates:       c.clientCerts,
			InsecureSkipVerify: c.acceptInvalid,
		}
	}
	if c.proxyURL != "" {
		proxy, err := url.Parse(c.proxyURL)
		if err != nil {
			return nil, rt, fmt.Errorf("invalid proxy url: %w", err)
		}
		if c.proxyUser != "" {
			proxy.User = url.UserPassword(c.proxyUser, c.proxyPassword)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
	}
	if c.cookieStore {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, rt, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		client.Jar = jar
	}
	return client, rt, nil
}
