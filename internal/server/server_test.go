package server

import (
	"net/http"
	"testing"
	"time"
)

func TestNormalizeAddr(t *testing.T) {
	cases := map[string]string{
		"":      "",
		"8080":  ":8080",
		":9090": ":9090",
	}
	for in, want := range cases {
		if got := normalizeAddr(in); got != want {
			t.Errorf("normalizeAddr(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestNewHTTPServer_Timeouts(t *testing.T) {
	srv := newHTTPServer(":0", http.NotFoundHandler(), Timeouts{})
	if srv.ReadHeaderTimeout != defaultReadTimeout || srv.WriteTimeout != defaultWriteTimeout {
		t.Fatalf("defaults not applied: read=%s write=%s", srv.ReadHeaderTimeout, srv.WriteTimeout)
	}
	srv = newHTTPServer(":0", http.NotFoundHandler(), Timeouts{Read: time.Second, Write: 2 * time.Second})
	if srv.ReadHeaderTimeout != time.Second || srv.WriteTimeout != 2*time.Second {
		t.Fatalf("configured timeouts ignored")
	}
}
