/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package secure is the optional TLS handshake hook the socket layer wires
// in for stream sockets. A socket with CfgSecure enabled runs its handshake
// through here once the underlying stream connects; the socket's
// SECURE_NEGO_IN_PROGRESS flag stays set for the duration of InitSession and
// is cleared by the caller once it returns.
package secure

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/sabouaram/netsock/certificates"
	tlscas "github.com/sabouaram/netsock/certificates/ca"
	tlscrt "github.com/sabouaram/netsock/certificates/certs"
)

// TrustCallback lets the caller accept or reject a peer certificate beyond
// what the root CA pool already enforces (common-name pinning and similar
// per-connection policy).
type TrustCallback func(state tls.ConnectionState) error

// Config holds the per-socket TLS configuration (CfgSecure* option group):
// certificate/key material, the server name used for SNI and verification,
// and an optional trust callback.
type Config struct {
	mu sync.Mutex

	tlsCfg     certificates.TLSConfig
	serverName string
	isServer   bool
	trust      TrustCallback
}

// NewConfig builds an empty TLS configuration defaulted from the library's
// baseline cipher/version policy.
func NewConfig() *Config {
	return &Config{tlsCfg: certificates.New()}
}

// SetCertificatePair loads a PEM certificate/key pair used when this socket
// acts as the TLS server side (accept()) or presents a client certificate.
func (c *Config) SetCertificatePair(certPEM, keyPEM string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tlsCfg.AddCertificatePairString(keyPEM, certPEM)
}

// SetRootCA registers a trusted root CA used to verify the peer.
func (c *Config) SetRootCA(pem string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tlsCfg.AddRootCAString(pem)
}

// RootCAs returns the currently trusted root CAs.
func (c *Config) RootCAs() []tlscas.Cert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tlsCfg.GetRootCA()
}

// SetServerName sets the name used for SNI/verification (CfgSecureCommonName).
func (c *Config) SetServerName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.serverName = name
}

// SetIsServer selects which side of the handshake InitSession performs.
func (c *Config) SetIsServer(isServer bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isServer = isServer
}

// SetTrustCallback installs a post-handshake verification hook
// (CfgSecureTrustCallback).
func (c *Config) SetTrustCallback(cb TrustCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trust = cb
}

func (c *Config) snapshot() (certificates.TLSConfig, string, bool, TrustCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tlsCfg, c.serverName, c.isServer, c.trust
}

// Session wraps the *tls.Conn produced by a completed handshake.
type Session struct {
	raw *tls.Conn
}

// InitSession runs the TLS handshake over raw, blocking until it completes,
// fails, or ctx is done. This is the only blocking point the SECURE_NEGO_IN_
// PROGRESS flag guards: once it returns, the flag must be cleared by the
// caller regardless of outcome.
func InitSession(ctx context.Context, cfg *Config, raw net.Conn) (*Session, error) {
	tlsCfg, serverName, isServer, trust := cfg.snapshot()

	var conn *tls.Conn
	if isServer {
		conn = tls.Server(raw, tlsCfg.TlsConfig(serverName))
	} else {
		conn = tls.Client(raw, tlsCfg.TlsConfig(serverName))
	}

	if err := conn.HandshakeContext(ctx); err != nil {
		return nil, err
	}

	if trust != nil {
		if err := trust(conn.ConnectionState()); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	return &Session{raw: conn}, nil
}

// Read decrypts application data from the secured stream.
func (s *Session) Read(buf []byte) (int, error) {
	return s.raw.Read(buf)
}

// Write encrypts and sends application data over the secured stream.
func (s *Session) Write(buf []byte) (int, error) {
	return s.raw.Write(buf)
}

// SetReadDeadline sets the read deadline on the underlying transport, the
// same way a socket layer's block/no-block/timeout rx call would on a plain
// tcp.Conn; tls.Conn.Read honors whatever deadline its raw net.Conn carries.
func (s *Session) SetReadDeadline(t time.Time) error {
	return s.raw.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline on the underlying transport.
func (s *Session) SetWriteDeadline(t time.Time) error {
	return s.raw.SetWriteDeadline(t)
}

// IsDataPending reports whether decrypted application data is already
// buffered and can be read without touching the underlying transport, used
// by the readiness multiplexer to avoid a spurious not-ready result right
// after a handshake that piggy-backed app data.
func (s *Session) IsDataPending() bool {
	return s.raw.ConnectionState().HandshakeComplete && connBuffered(s.raw) > 0
}

// connBuffered reports bytes already buffered in tls.Conn's internal input
// buffer. crypto/tls does not expose this directly; callers that need exact
// buffering should prefer a short non-blocking Read instead. This stays a
// conservative zero so IsDataPending never reports a false positive.
func connBuffered(*tls.Conn) int {
	return 0
}

// CloseNotify sends a TLS close_notify alert and stops further writes on the
// session, mirroring the plain-text close handshake without tearing down the
// raw transport connection the caller still owns.
func (s *Session) CloseNotify() error {
	return s.raw.CloseWrite()
}

// ParseCertificatePair parses a PEM key/certificate pair into a certs.Cert,
// for callers that want the parsed pair itself; SetCertificatePair takes
// the raw PEM strings instead.
func ParseCertificatePair(keyPEM, certPEM string) (tlscrt.Cert, error) {
	return tlscrt.ParsePair(keyPEM, certPEM)
}
