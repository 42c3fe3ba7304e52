package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestNewSafeClientTimeout はタイムアウト設定が反映されることをテストする。
func TestNewSafeClientTimeout(t *testing.T) {
	guard := NewSSRFGuard()
	timeout := 5 * time.Second
	client := guard.NewSafeClient(timeout)
	if client.Timeout != timeout {
		t.Errorf("expected timeout %v, got %v", timeout, client.Timeout)
	}
	if client.Transport == nil || client.Transport == http.DefaultTransport {
		t.Fatal("expected custom Transport")
	}
}

// TestNewSafeClientBlocksLoopback はループバックへのリクエストがブロックされることをテストする。
// httptestサーバーは127.0.0.1で起動されるため、safeurlがブロックする。
func TestNewSafeClientBlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewSSRFGuard().NewSafeClient(5 * time.Second)

	_, err := client.Get(ts.URL)
	if err == nil {
		t.Fatal("expected error for loopback address request, got nil")
	}
}

// TestNewSafeClientRedirectValidation はリダイレクト先が許可ホスト外の場合に拒否されることをテストする。
func TestNewSafeClientRedirectValidation(t *testing.T) {
	guard := NewSSRFGuard("giphy.com")
	client := guard.NewSafeClient(5 * time.Second)

	req, _ := http.NewRequest(http.MethodGet, "https://evil.example.com/x.gif", nil)
	via := []*http.Request{{}}
	if err := client.CheckRedirect(req, via); err == nil {
		t.Error("redirect to non-allowed host should be rejected")
	}

	ok, _ := http.NewRequest(http.MethodGet, "https://media.giphy.com/x.gif", nil)
	if err := client.CheckRedirect(ok, via); err != nil {
		t.Errorf("redirect within allowed hosts returned error: %v", err)
	}

	many := make([]*http.Request, maxRedirects)
	if err := client.CheckRedirect(ok, many); err == nil {
		t.Error("redirect chain over the limit should be rejected")
	}
}

// TestValidateURL_AllowedHosts は許可ホストとそのサブドメインのみ通過することをテストする。
func TestValidateURL_AllowedHosts(t *testing.T) {
	guard := NewSSRFGuard(" giphy.com", "imgflip.com", "redd.it", "", "giphy.com")

	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://media.giphy.com/media/abc/giphy.gif", false},
		{"https://giphy.com/gifs/abc", false},
		{"https://i.imgflip.com/1bij.jpg", false},
		{"https://i.redd.it/a1.jpeg", false},
		{"https://I.REDD.IT/a1.jpeg", false},
		{"https://notgiphy.com/x.gif", true},
		{"https://giphy.com.evil.example/x.gif", true},
		{"https://example.com/x.gif", true},
		{"https://93.184.216.34/x.gif", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := guard.ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) err = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

// TestValidateURL_PublicURL は許可ホスト未設定時に公開URLが通過することをテストする。
func TestValidateURL_PublicURL(t *testing.T) {
	guard := NewSSRFGuard()

	for _, u := range []string{"https://example.com", "http://media.example.org/x.gif"} {
		if err := guard.ValidateURL(u); err != nil {
			t.Errorf("ValidateURL(%q) returned error: %v", u, err)
		}
	}
}

// TestValidateURL_BlockedAddresses は内部アドレスが拒否されることをテストする。
func TestValidateURL_BlockedAddresses(t *testing.T) {
	guard := NewSSRFGuard()

	blocked := []string{
		"http://10.0.0.1/x.gif",
		"http://172.16.0.1/x.gif",
		"http://192.168.1.100/x.gif",
		"http://127.0.0.1/x.gif",
		"http://localhost/x.gif",
		"http://api.localhost/x.gif",
		"http://169.254.169.254/latest/meta-data/",
		"http://[::1]/x.gif",
		"http://0.0.0.0/x.gif",
	}
	for _, u := range blocked {
		t.Run(u, func(t *testing.T) {
			if err := guard.ValidateURL(u); err == nil {
				t.Errorf("ValidateURL(%q) should have returned error", u)
			}
		})
	}
}

// TestValidateURL_InvalidURL は無効なURLの検証が失敗することをテストする。
func TestValidateURL_InvalidURL(t *testing.T) {
	guard := NewSSRFGuard()

	invalidURLs := []string{
		"",
		"not-a-url",
		"ftp://example.com/x.gif",
		"file:///etc/passwd",
	}
	for _, u := range invalidURLs {
		t.Run(u, func(t *testing.T) {
			if err := guard.ValidateURL(u); err == nil {
				t.Errorf("ValidateURL(%q) should have returned error for invalid URL", u)
			}
		})
	}
}

// TestSSRFGuardInterface はSSRFGuardがインターフェースを正しく実装していることをテストする。
func TestSSRFGuardInterface(t *testing.T) {
	var _ SSRFGuardService = NewSSRFGuard()
}
