package httputil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"
)

func TestPublicAddr(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"93.184.216.34", true},
		{"2606:4700::1111", true},
		{"127.0.0.1", false},
		{"10.1.2.3", false},
		{"172.16.0.1", false},
		{"192.168.1.1", false},
		{"169.254.169.254", false},
		{"100.64.0.1", false},
		{"0.0.0.0", false},
		{"::1", false},
		{"fe80::1", false},
		{"fd00::1", false},
		{"::ffff:127.0.0.1", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			if got := PublicAddr(netip.MustParseAddr(tt.ip)); got != tt.want {
				t.Errorf("PublicAddr(%s) = %v, want %v", tt.ip, got, tt.want)
			}
		})
	}
}

func TestValidatePublicURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"public host", "https://cdn.example.com/a.m3u8", false},
		{"public ip", "http://93.184.216.34/a.m3u8", false},
		{"loopback", "http://127.0.0.1/x", true},
		{"metadata service", "http://169.254.169.254/latest/meta-data/", true},
		{"private range", "http://192.168.0.10:8080/", true},
		{"ipv6 loopback", "http://[::1]/x", true},
		{"localhost", "http://localhost:9000/x", true},
		{"localhost subdomain", "http://api.localhost/x", true},
		{"not http", "file:///etc/passwd", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePublicURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePublicURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestPublicClientRefusesLoopback(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	_, err := NewPublicClient(time.Second).Get(srv.URL)
	if !errors.Is(err, ErrPrivateAddress) {
		t.Fatalf("Get() error = %v, want ErrPrivateAddress", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("public client reached the loopback server")
	}

	resp, err := NewClient(time.Second).Get(srv.URL)
	if err != nil {
		t.Fatalf("NewClient Get() error = %v", err)
	}
	resp.Body.Close()
}
