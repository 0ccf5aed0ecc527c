package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

// HTTP Test Helpers

// AssertStatusCode fails if the response status code doesn't match expected
func AssertStatusCode(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSONResponse fails if the response is not valid JSON or status doesn't match
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int) map[string]interface{} {
	t.Helper()
	AssertStatusCode(t, w, expectedStatus)

	var result map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode JSON response: %v. Body: %s", err, w.Body.String())
	}
	return result
}

// AssertJSONContains fails if the JSON response doesn't contain the expected key-value pair
func AssertJSONContains(t *testing.T, w *httptest.ResponseRecorder, key string, expected interface{}) {
	t.Helper()

	var result map[string]interface{}
	body := w.Body.String()
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to decode JSON response: %v. Body: %s", err, body)
	}

	got, ok := result[key]
	if !ok {
		t.Errorf("JSON response missing key %q. Body: %s", key, body)
		return
	}

	if !reflect.DeepEqual(got, expected) {
		t.Errorf("JSON key %q: got %v (%T), want %v (%T)", key, got, got, expected, expected)
	}
}

// AssertJSONError fails if the response doesn't contain an error field with the expected message
func AssertJSONError(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedMsg string) {
	t.Helper()
	AssertStatusCode(t, w, expectedStatus)

	body := w.Body.String()
	if !strings.Contains(body, expectedMsg) {
		t.Errorf("expected error message %q in response, got: %s", expectedMsg, body)
	}
}

// AssertHeader fails if the response header doesn't match expected value
func AssertHeader(t *testing.T, w *httptest.ResponseRecorder, key, expected string) {
	t.Helper()
	got := w.Header().Get(key)
	if got != expected {
		t.Errorf("header %q: got %q, want %q", key, got, expected)
	}
}

// AssertHeaderContains fails if the response header doesn't contain expected substring
func AssertHeaderContains(t *testing.T, w *httptest.ResponseRecorder, key, substring string) {
	t.Helper()
	got := w.Header().Get(key)
	if !strings.Contains(got, substring) {
		t.Errorf("header %q: expected to contain %q, got %q", key, substring, got)
	}
}

// AssertCookie fails if the response doesn't have a cookie with the expected name
func AssertCookie(t *testing.T, w *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	cookies := w.Result().Cookies()
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	t.Errorf("expected cookie %q not found", name)
	return nil
}

// AssertNoCookie fails if the response has a cookie with the given name
func AssertNoCookie(t *testing.T, w *httptest.ResponseRecorder, name string) {
	t.Helper()
	cookies := w.Result().Cookies()
	for _, c := range cookies {
		if c.Name == name && c.Value != "" && c.MaxAge >= 0 {
			t.Errorf("unexpected cookie %q found with value %q", name, c.Value)
		}
	}
}

// Request Helpers

// NewJSONRequest creates a new HTTP request with JSON body
func NewJSONRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = strings.NewReader(string(data))
	}
	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewRequestWithCookie creates a new HTTP request with a session cookie
func NewRequestWithCookie(t *testing.T, method, url, cookieName, cookieValue string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, url, nil)
	req.AddCookie(&http.Cookie{
		Name:  cookieName,
		Value: cookieValue,
	})
	return req
}

// DecodeJSON decodes JSON response body into the given struct
func DecodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var result T
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode JSON response: %v. Body: %s", err, w.Body.String())
	}
	return result
}

// AssertRedirect fails unless the response redirects to location
func AssertRedirect(t *testing.T, w *httptest.ResponseRecorder, location string) {
	t.Helper()
	if w.Code < 300 || w.Code > 399 {
		t.Errorf("expected redirect, got status %d. Body: %s", w.Code, w.Body.String())
		return
	}
	if got := w.Header().Get("Location"); got != location {
		t.Errorf("expected redirect to %q, got %q", location, got)
	}
}
