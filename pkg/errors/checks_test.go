package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

func TestAsError_Wrapped(t *testing.T) {
	inner := New(CodeValidation, "test")
	wrapped := fmt.Errorf("context: %w", inner)

	got, ok := AsError(wrapped)
	if !ok {
		t.Fatal("AsError should find an *Error behind fmt.Errorf wrapping")
	}
	if got != inner {
		t.Error("AsError should return the wrapped *Error")
	}
}

func TestAsError_StandardError(t *testing.T) {
	got, ok := AsError(errors.New("plain"))
	if ok || got != nil {
		t.Errorf("AsError(plain) = %v, %v; want nil, false", got, ok)
	}
}

func TestHasCode(t *testing.T) {
	err := Forbidden("cannot delete own account")
	if !HasCode(err, CodeAuthorizationDenied) {
		t.Error("HasCode should match CodeAuthorizationDenied")
	}
	if HasCode(err, CodeAuthorization) {
		t.Error("HasCode should not match a sibling code")
	}
	if GetCode(nil) != "" {
		t.Error("GetCode(nil) should be empty")
	}
}

func TestCategoryChecks(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"validation", New(CodeValidationFormat, "x"), IsValidation},
		{"authentication", New(CodeAuthenticationUnknownKey, "x"), IsAuthentication},
		{"authorization", Forbidden("x"), IsAuthorization},
		{"not found", New(CodeNotFoundAccount, "x"), IsNotFound},
		{"conflict", Conflict("x"), IsConflict},
		{"provisioning", New(CodeProvisioningFailed, "x"), IsProvisioning},
		{"internal", Internal("x"), IsInternal},
	}
	for _, tt := range tests {
		if !tt.check(tt.err) {
			t.Errorf("%s: check returned false for %v", tt.name, tt.err)
		}
		if tt.check(errors.New("plain")) {
			t.Errorf("%s: check returned true for a plain error", tt.name)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(New(CodeUnavailableDependency, "x")) {
		t.Error("UNAVAIL should be retryable")
	}
	if !IsRetryable(New(CodeTimeoutDependency, "x")) {
		t.Error("TIMEOUT should be retryable")
	}
	if IsRetryable(New(CodeProvisioningFailed, "x")) {
		t.Error("PROV should not be retryable")
	}
}

func TestIsClientError(t *testing.T) {
	if !IsClientError(New(CodeAuthenticationExpired, "x")) {
		t.Error("AUTH should be a client error")
	}
	if IsClientError(New(CodeProvisioningFailed, "x")) {
		t.Error("PROV should not be a client error")
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }
func (timeoutErr) Timeout() bool { return true }

func TestDependency(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"deadline", context.DeadlineExceeded, CodeTimeoutDependency},
		{"canceled", fmt.Errorf("do: %w", context.Canceled), CodeTimeoutDependency},
		{"net timeout", &net.OpError{Op: "dial", Err: timeoutErr{}}, CodeTimeoutDependency},
		{"refused", errors.New("connection refused"), CodeUnavailableDependency},
	}
	for _, tt := range tests {
		got := Dependency(tt.err, "idp: request failed")
		if got.Code != tt.want {
			t.Errorf("%s: Dependency code = %s, want %s", tt.name, got.Code, tt.want)
		}
	}
	if Dependency(nil, "x") != nil {
		t.Error("Dependency(nil) should be nil")
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil) != nil {
		t.Error("FromError(nil) should be nil")
	}
	coded := Forbidden("x")
	if FromError(coded) != coded {
		t.Error("FromError should return an existing *Error unchanged")
	}
	if got := FromError(errors.New("plain")); got.Code != CodeInternal {
		t.Errorf("FromError(plain).Code = %s, want %s", got.Code, CodeInternal)
	}
}
