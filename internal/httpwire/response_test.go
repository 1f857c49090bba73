package httpwire

import "testing"

func TestResponse_SerializeDefaults(t *testing.T) {
	r := NewResponse(200, "OK")
	r.Body = []byte("Hello!")
	out := string(r.Serialize())

	if want := "HTTP/1.1 200 OK\r\n"; out[:len(want)] != want {
		t.Fatalf("unexpected status line: %q", out)
	}
	if !contains(out, "Content-Length: 6\r\n") {
		t.Fatalf("expected default Content-Length, got %q", out)
	}
	if !contains(out, "Connection: close\r\n") {
		t.Fatalf("expected default Connection: close, got %q", out)
	}
	if !contains(out, "\r\n\r\nHello!") {
		t.Fatalf("expected body after blank line, got %q", out)
	}
}

func TestResponse_SerializeRespectsExplicitHeaders(t *testing.T) {
	r := NewResponse(200, "OK")
	r.SetHeader("Content-Length", "0")
	r.SetHeader("Connection", "keep-alive")
	r.Body = []byte("ignored-by-explicit-length")
	out := string(r.Serialize())

	if !contains(out, "Content-Length: 0\r\n") {
		t.Fatalf("expected explicit Content-Length preserved, got %q", out)
	}
	if !contains(out, "Connection: keep-alive\r\n") {
		t.Fatalf("expected explicit Connection preserved, got %q", out)
	}
}

func contains(haystack, needle string) bool {
	return indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
