package mqtt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kilianp07/agvkernel/auth"
)

// helper to generate self-signed cert
func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = dir + "/cert.pem"
	keyFile = dir + "/key.pem"
	caFile = dir + "/ca.pem"
	if err := os.WriteFile(certFile, certPEM, 0644); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0644); err != nil {
		t.Fatalf("write key: %v", err)
	}
	if err := os.WriteFile(caFile, certPEM, 0644); err != nil {
		t.Fatalf("write ca: %v", err)
	}
	return
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	cfg := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	if err != nil {
		t.Fatalf("load tls: %v", err)
	}
	if len(tlsCfg.Certificates) == 0 {
		t.Fatalf("no certs loaded")
	}
	if tlsCfg.RootCAs == nil {
		t.Fatalf("no root CAs")
	}
}

func TestNewClientOptionsAuth(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "id", Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("opts: %v", err)
	}
	if opts.Username != "u" || opts.Password != "p" {
		t.Fatalf("auth not set")
	}
}

func TestLoadTLSConfigRequiresFiles(t *testing.T) {
	if _, err := (Config{UseTLS: true}).LoadTLSConfig(); err == nil {
		t.Fatal("expected error without certificate paths")
	}
}

func TestLWTConfigured(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "id", LWTTopic: "lwt", LWTPayload: "bye", LWTQoS: 1})
	if err != nil {
		t.Fatalf("opts: %v", err)
	}
	if !opts.WillEnabled {
		t.Fatalf("will not enabled")
	}
	if opts.WillTopic != "lwt" || string(opts.WillPayload) != "bye" {
		t.Fatalf("will options incorrect")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"ok", Config{Broker: "tcp://b:1883"}, false},
		{"missing broker", Config{}, true},
		{"bad auth", Config{Broker: "tcp://b:1883", AuthMethod: "kerberos"}, true},
		{"bad qos", Config{Broker: "tcp://b:1883", QoS: map[string]byte{"command": 3}}, true},
		{"negative ack timeout", Config{Broker: "tcp://b:1883", AckTimeout: -time.Second}, true},
		{"oauth2 without section", Config{Broker: "tcp://b:1883", AuthMethod: "oauth2"}, true},
		{"oauth2 without client", Config{Broker: "tcp://b:1883", AuthMethod: "oauth2", OAuth2: &auth.Conf{TokenURL: "https://idp/token"}}, true},
		{"oauth2", Config{Broker: "tcp://b:1883", AuthMethod: "oauth2", OAuth2: &auth.Conf{ClientID: "kernel", TokenURL: "https://idp/token"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.SetDefaults()
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOAuth2Credentials(t *testing.T) {
	ResetMetrics(nil)
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"jwt%d","token_type":"bearer","expires_in":3600}`, calls)
	}))
	defer srv.Close()

	cfg := Config{
		Broker:     "tcp://localhost:1883",
		Username:   "kernel",
		AuthMethod: "oauth2",
		OAuth2:     &auth.Conf{ClientID: "kernel", TokenURL: srv.URL},
	}
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		t.Fatalf("opts: %v", err)
	}
	if opts.CredentialsProvider == nil {
		t.Fatal("credentials provider not set")
	}
	user, pass := opts.CredentialsProvider()
	if user != "kernel" || pass != "jwt1" {
		t.Fatalf("credentials = %q/%q", user, pass)
	}
	if _, pass = opts.CredentialsProvider(); pass != "jwt1" || calls != 1 {
		t.Fatalf("token not cached: %q after %d calls", pass, calls)
	}

	srv.Close()
	cfg.OAuth2 = &auth.Conf{ClientID: "kernel", TokenURL: srv.URL}
	opts, err = NewClientOptions(cfg)
	if err != nil {
		t.Fatalf("opts: %v", err)
	}
	if _, pass = opts.CredentialsProvider(); pass != "" {
		t.Fatalf("password = %q, want empty after token failure", pass)
	}
	if got := testutil.ToFloat64(tokenErrors); got != 1 {
		t.Fatalf("token errors = %v", got)
	}
}
