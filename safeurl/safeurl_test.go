package safeurl

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateURL_SchemeRestriction(t *testing.T) {
	// WHAT: Only http and https URLs pass validation.
	// WHY: file://, gopher://, etc. are classic SSRF and local-read vectors.
	for _, u := range []string{"file:///etc/passwd", "gopher://example.com", "ftp://example.com/x"} {
		if err := ValidateURL(u); !errors.Is(err, ErrUnsafeScheme) {
			t.Errorf("%s: err = %v, want ErrUnsafeScheme", u, err)
		}
	}
	if err := ValidateURL("HTTPS://93.184.216.34/"); err != nil {
		t.Errorf("uppercase https rejected: %v", err)
	}
}

func TestValidateURL_PrivateLiterals(t *testing.T) {
	// WHAT: Literal private/loopback/link-local IPs are rejected.
	// WHY: Monitored URLs must never reach internal services.
	blocked := []string{
		"http://127.0.0.1/",
		"http://10.1.2.3/",
		"http://172.16.0.1/",
		"http://192.168.1.1/admin",
		"http://169.254.169.254/latest/meta-data",
		"http://[::1]/",
		"http://[fc00::1]/",
	}
	for _, u := range blocked {
		if err := ValidateURL(u); !errors.Is(err, ErrSSRF) {
			t.Errorf("%s: err = %v, want ErrSSRF", u, err)
		}
	}
}

func TestValidateURL_PublicLiteral(t *testing.T) {
	// WHAT: A public literal IP passes.
	// WHY: Some sites are served by bare address.
	if err := ValidateURL("http://93.184.216.34/page"); err != nil {
		t.Errorf("public IP rejected: %v", err)
	}
}

func TestValidateURL_NoHost(t *testing.T) {
	// WHAT: A URL without a host fails.
	// WHY: Nothing to fetch.
	if err := ValidateURL("http:///path-only"); err == nil {
		t.Error("hostless URL accepted")
	}
}

func TestLimitedReadAll_UnderLimit(t *testing.T) {
	// WHAT: A body under the limit reads fully.
	// WHY: The limit is a cap, not a truncation point.
	data, err := LimitedReadAll(strings.NewReader("hello"), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("got %q", data)
	}
}

func TestLimitedReadAll_AtLimit(t *testing.T) {
	// WHAT: A body exactly at the limit is accepted.
	// WHY: The bound is inclusive.
	data, err := LimitedReadAll(strings.NewReader("12345"), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) != 5 {
		t.Errorf("got %d bytes", len(data))
	}
}

func TestLimitedReadAll_OverLimit(t *testing.T) {
	// WHAT: A body over the limit errors instead of truncating.
	// WHY: Silent truncation would hash partial content and produce phantom
	// change reports.
	_, err := LimitedReadAll(strings.NewReader("123456"), 5)
	if err == nil {
		t.Fatal("oversized body accepted")
	}
}
