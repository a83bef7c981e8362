// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package mqttclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Config builds the broker connection options. Setters chain and collect
// the first error, reported when the client opens.
type Config struct {
	clientID       string
	username       string
	password       string
	cleanSession   bool
	autoReconnect  bool
	connectTimeout time.Duration
	keepAlive      time.Duration
	will           *will
	rootCAs        *x509.CertPool
	clientCerts    []tls.Certificate
	acceptInvalid  bool
	err            error
}

type will struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// NewConfig returns a config with the defaults the broker handshake
// expects: a random client id, clean session, automatic reconnect.
func NewConfig() *Config {
	return &Config{
		clientID:       "rb-" + uuid.NewString()[:8],
		cleanSession:   true,
		autoReconnect:  true,
		connectTimeout: 30 * time.Second,
		keepAlive:      60 * time.Second,
	}
}

// ClientID overrides the generated client identifier.
func (c *Config) ClientID(id string) *Config {
	c.clientID = id
	return c
}

// Credentials sets the username and password for the broker handshake.
func (c *Config) Credentials(username, password string) *Config {
	c.username = username
	c.password = password
	return c
}

// CleanSession controls whether the broker discards state on disconnect.
func (c *Config) CleanSession(enabled bool) *Config {
	c.cleanSession = enabled
	return c
}

// AutoReconnect controls automatic reconnection after a lost connection.
func (c *Config) AutoReconnect(enabled bool) *Config {
	c.autoReconnect = enabled
	return c
}

// ConnectTimeout bounds the initial broker handshake.
func (c *Config) ConnectTimeout(d time.Duration) *Config {
	c.connectTimeout = d
	return c
}

// KeepAlive sets the MQTT keep-alive interval.
func (c *Config) KeepAlive(d time.Duration) *Config {
	c.keepAlive = d
	return c
}

// Will registers a last-will message the broker publishes if the
// connection drops without a clean disconnect.
func (c *Config) Will(topic string, payload []byte, qos byte, retained bool) *Config {
	c.will = &will{topic: topic, payload: payload, qos: qos, retained: retained}
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

// AcceptInvalidCerts disables broker certificate verification. For test
// brokers only.
func (c *Config) AcceptInvalidCerts(enabled bool) *Config {
	c.acceptInvalid = enabled
	return c
}

// build constructs the paho client options for the given broker URL.
// Multiple broker addresses may be separated by ';'.
func (c *Config) build(rawURL string) (*mqtt.ClientOptions, error) {
	if c.err != nil {
		return nil, c.err
	}
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("empty broker url")
	}

	opts := mqtt.NewClientOptions()
	for _, broker := range strings.Split(rawURL, ";") {
		broker = strings.TrimSpace(broker)
		if broker == "" {
			continue
		}
		opts.AddBroker(broker)
	}
	if len(opts.Servers) == 0 {
		return nil, fmt.Errorf("no broker address in %q", rawURL)
	}

	opts.SetClientID(c.clientID)
	opts.SetCleanSession(c.cleanSession)
	opts.SetAutoReconnect(c.autoReconnect)
	opts.SetConnectTimeout(c.connectTimeout)
	opts.SetKeepAlive(c.keepAlive)
	if c.username != "" {
		opts.SetUsername(c.username)
		opts.SetPassword(c.password)
	}
	if c.will != nil {
		opts.SetBinaryWill(c.will.topic, c.will.payload, c.will.qos, c.will.retained)
	}
	if c.rootCAs != nil || len(c.clientCerts) > 0 || c.acceptInvalid {
		opts.SetTLSConfig(&tls.Config{
			RootCAs:            c.rootCAs,
			Certificates:       c.clientCerts,
			InsecureSkipVerify: c.acceptInvalid,
		})
	}
	return opts, nil
}
