package smtp

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeSMTPServer is a minimal SMTP server for testing
type fakeSMTPServer struct {
	listener net.Listener

	// password enables AUTH PLAIN when non-empty
	password string
	// rejectRcpt makes RCPT TO fail for addresses containing it
	rejectRcpt string
	// implicitTLS wraps the listener in TLS
	implicitTLS bool
	// startTLS advertises STARTTLS on plain connections
	startTLS bool
	// dropAfterReset closes the first connection right after its first RSET
	dropAfterReset bool
	// dropOnMessage closes the connection without replying once the n-th
	// message has been received
	dropOnMessage int

	cert tls.Certificate

	mx           sync.Mutex
	messages     []string
	conns        int
	authAttempts int
	upgrades     int
}

func startFakeSMTPServer(t *testing.T, configure func(s *fakeSMTPServer)) *fakeSMTPServer {
	t.Helper()

	server := &fakeSMTPServer{}
	if configure != nil {
		configure(server)
	}

	if server.implicitTLS || server.startTLS {
		cert, err := generateTestCert()
		require.NoError(t, err, "failed to generate cert")
		server.cert = cert
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "failed to start SMTP server")
	if server.implicitTLS {
		listener = tls.NewListener(listener, server.tlsConfig())
	}
	server.listener = listener

	go server.handleConnections()
	t.Cleanup(func() { _ = listener.Close() })

	return server
}

func (s *fakeSMTPServer) config() Config {
	return Config{
		Host:           "127.0.0.1",
		Port:           s.listener.Addr().(*net.TCPAddr).Port,
		Secure:         s.implicitTLS,
		StartTLS:       s.startTLS,
		Insecure:       s.implicitTLS || s.startTLS,
		MaxConnections: 1,
	}
}

func (s *fakeSMTPServer) tlsConfig() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{s.cert},
		MinVersion:   tls.VersionTLS12,
	}
}

func (s *fakeSMTPServer) handleConnections() {
	for {
		c, err := s.listener.Accept()
		if err != nil {
			return // listener closed
		}

		s.mx.Lock()
		s.conns++
		n := s.conns
		s.mx.Unlock()

		go func() {
			s.handleSMTP(c, n)
		}()
	}
}

func (s *fakeSMTPServer) handleSMTP(c net.Conn, n int) {
	defer func() { _ = c.Close() }()

	reader := bufio.NewReader(c)
	writer := bufio.NewWriter(c)
	upgraded := false
	resets := 0

	reply := func(line string) {
		_, _ = writer.WriteString(line + "\r\n")
		_ = writer.Flush()
	}

	reply("220 localhost ESMTP Test Server")

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, "EHLO") || strings.HasPrefix(line, "HELO"):
			ext := []string{"250-localhost"}
			if s.startTLS && !upgraded {
				ext = append(ext, "250-STARTTLS")
			}
			if s.password != "" {
				ext = append(ext, "250-AUTH PLAIN")
			}
			reply(strings.Join(append(ext, "250 HELP"), "\r\n"))
		case line == "STARTTLS" && s.startTLS && !upgraded:
			reply("220 Ready to start TLS")

			tlsConn := tls.Server(c, s.tlsConfig())
			if err := tlsConn.Handshake(); err != nil {
				return
			}
			c = tlsConn
			reader = bufio.NewReader(c)
			writer = bufio.NewWriter(c)
			upgraded = true

			s.mx.Lock()
			s.upgrades++
			s.mx.Unlock()
		case strings.HasPrefix(line, "AUTH PLAIN "):
			s.mx.Lock()
			s.authAttempts++
			s.mx.Unlock()

			decoded, _ := base64.StdEncoding.DecodeString(strings.TrimPrefix(line, "AUTH PLAIN "))
			parts := strings.Split(string(decoded), "\x00")
			if len(parts) == 3 && parts[2] == s.password {
				reply("235 2.7.0 Authentication successful")
			} else {
				reply("535 5.7.8 Authentication credentials invalid")
			}
		case strings.HasPrefix(line, "MAIL FROM:"):
			reply("250 OK")
		case strings.HasPrefix(line, "RCPT TO:"):
			if s.rejectRcpt != "" && strings.Contains(line, s.rejectRcpt) {
				reply("550 5.1.1 No such user")
			} else {
				reply("250 OK")
			}
		case line == "DATA":
			reply("354 End data with <CR><LF>.<CR><LF>")

			var msg strings.Builder
			for {
				text, err := reader.ReadString('\n')
				if err != nil {
					return
				}
				text = strings.TrimRight(text, "\r\n")
				if text == "." {
					break
				}
				text = strings.TrimPrefix(text, ".")
				msg.WriteString(text)
				msg.WriteString("\r\n")
			}

			s.mx.Lock()
			s.messages = append(s.messages, msg.String())
			drop := s.dropOnMessage > 0 && len(s.messages) == s.dropOnMessage
			s.mx.Unlock()

			if drop {
				return
			}
			reply("250 OK")
		case line == "RSET":
			reply("250 OK")
			resets++
			if s.dropAfterReset && n == 1 && resets == 1 {
				return
			}
		case line == "NOOP":
			reply("250 OK")
		case line == "QUIT":
			reply("221 localhost closing connection")
			return
		default:
			reply("500 Syntax error")
		}
	}
}

func (s *fakeSMTPServer) received() []string {
	s.mx.Lock()
	defer s.mx.Unlock()
	return append([]string(nil), s.messages...)
}

func (s *fakeSMTPServer) connections() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.conns
}

func (s *fakeSMTPServer) auths() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.authAttempts
}

func (s *fakeSMTPServer) tlsUpgrades() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.upgrades
}

// generateTestCert generates a self-signed certificate for 127.0.0.1.
func generateTestCert() (tls.Certificate, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Test SMTP"},
			CommonName:   "localhost",
		},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	key, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return tls.Certificate{}, err
	}

	return tls.X509KeyPair(
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: key}),
	)
}
