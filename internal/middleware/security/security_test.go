package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractClientIP(t *testing.T) {
	d := NewDetector()

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{name: "direct", remoteAddr: "203.0.113.7:5555", want: "203.0.113.7"},
		{name: "untrusted peer ignores XFF", remoteAddr: "203.0.113.7:5555",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.1"}, want: "203.0.113.7"},
		{name: "trusted proxy XFF", remoteAddr: "10.0.0.2:80",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.3"}, want: "198.51.100.1"},
		{name: "trusted proxy X-Real-IP", remoteAddr: "127.0.0.1:80",
			headers: map[string]string{"X-Real-IP": "198.51.100.9"}, want: "198.51.100.9"},
		{name: "invalid XFF falls back", remoteAddr: "192.168.1.1:80",
			headers: map[string]string{"X-Forwarded-For": "not-an-ip"}, want: "192.168.1.1"},
		{name: "no port", remoteAddr: "203.0.113.7", want: "203.0.113.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := d.ExtractClientIP(r); got != tt.want {
				t.Errorf("ExtractClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAddTrustedProxy(t *testing.T) {
	d := NewDetector()
	if err := d.AddTrustedProxy("nope"); err == nil {
		t.Fatal("want error for invalid CIDR")
	}
	if err := d.AddTrustedProxy("203.0.113.0/24"); err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.7:1"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")
	if got := d.ExtractClientIP(r); got != "198.51.100.1" {
		t.Errorf("ExtractClientIP() = %q", got)
	}
}

func TestDetectSuspiciousRequest(t *testing.T) {
	d := NewDetector()

	clean := httptest.NewRequest(http.MethodGet, "/api/records?company=Acme", nil)
	if d.DetectSuspiciousRequest(clean) {
		t.Error("plain API request flagged")
	}

	attacks := []*http.Request{
		httptest.NewRequest(http.MethodGet, "/.env", nil),
		httptest.NewRequest(http.MethodGet, "/api/records?name=1%27+union+select", nil),
		httptest.NewRequest(http.MethodGet, "/api/records?name=1%27%20UNION%20SELECT%201", nil),
		httptest.NewRequest(http.MethodGet, "/api/records?company=%3Cscript%3Ealert(1)%3C/script%3E", nil),
		httptest.NewRequest(http.MethodGet, "/api/records?file=..%2F..%2Fetc%2Fpasswd", nil),
		httptest.NewRequest("TRACE", "/", nil),
	}
	scanner := httptest.NewRequest(http.MethodGet, "/", nil)
	scanner.Header.Set("User-Agent", "sqlmap/1.7")
	attacks = append(attacks, scanner)

	for _, r := range attacks {
		if !d.DetectSuspiciousRequest(r) {
			t.Errorf("%s %s not flagged", r.Method, r.URL)
		}
	}
	if got := d.SuspiciousRequests(); got != int64(len(attacks)) {
		t.Errorf("SuspiciousRequests() = %d, want %d", got, len(attacks))
	}
}

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("Content-Security-Policy"); got == "" {
		t.Error("missing CSP")
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS sent over plain HTTP")
	}

	rec = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.TLS = &tls.ConnectionState{}
	h.ServeHTTP(rec, r)
	if got := rec.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Errorf("HSTS = %q", got)
	}
}

func TestBasicAuth(t *testing.T) {
	auth := NewBasicAuth("admin", "s3cret")
	h := auth.Middleware("/healthz")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		path       string
		user, pass string
		want       int
	}{
		{name: "no credentials", path: "/api/records", want: http.StatusUnauthorized},
		{name: "wrong password", path: "/api/records", user: "admin", pass: "nope", want: http.StatusUnauthorized},
		{name: "valid", path: "/api/records", user: "admin", pass: "s3cret", want: http.StatusNoContent},
		{name: "open path", path: "/healthz", want: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.user != "" {
				r.SetBasicAuth(tt.user, tt.pass)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate challenge")
			}
		})
	}
}
