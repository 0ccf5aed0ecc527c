package auth

import (
	"fmt"
	"net/mail"
	"sort"
	"strings"

	"tophome-storefront/internal/domain"
)

const MinPasswordLength = 6

// ValidationError lists the form fields that failed validation, keyed by
// their JSON names. It matches domain.ErrInvalidInput.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("invalid input: %s", strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return domain.ErrInvalidInput
}

type validator map[string]string

func (v validator) require(field, value, msg string) {
	if strings.TrimSpace(value) == "" {
		v.fail(field, msg)
	}
}

func (v validator) email(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.fail(field, "البريد الإلكتروني مطلوب")
		return
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value || !strings.Contains(value[strings.LastIndex(value, "@"):], ".") {
		v.fail(field, "البريد الإلكتروني غير صالح")
	}
}

func (v validator) password(field, value string) {
	if len([]rune(value)) < MinPasswordLength {
		v.fail(field, fmt.Sprintf("كلمة المرور يجب أن تكون %d أحرف على الأقل", MinPasswordLength))
	}
}

func (v validator) match(field, value, other string) {
	if value != other {
		v.fail(field, "كلمتا المرور غير متطابقتين")
	}
}

// fail keeps the first message per field
func (v validator) fail(field, msg string) {
	if _, ok := v[field]; !ok {
		v[field] = msg
	}
}

func (v validator) err() error {
	if len(v) == 0 {
		return nil
	}
	return &ValidationError{Fields: v}
}

func validateCredentials(c domain.Credentials) error {
	v := validator{}
	v.email("email", c.Email)
	v.require("password", c.Password, "كلمة المرور مطلوبة")
	return v.err()
}

func validateRegistration(r domain.Registration) error {
	v := validator{}
	v.require("fullName", r.FullName, "الاسم الكامل مطلوب")
	v.email("email", r.Email)
	v.password("password", r.Password)
	v.match("confirmPassword", r.ConfirmPassword, r.Password)
	v.require("phoneNumber", r.PhoneNumber, "رقم الهاتف مطلوب")
	return v.err()
}

func validateEmail(email string) error {
	v := validator{}
	v.email("email", email)
	return v.err()
}

func validateOTP(o domain.OTPVerification) error {
	v := validator{}
	v.email("email", o.Email)
	v.require("otp", o.OTP, "رمز التحقق مطلوب")
	return v.err()
}

func validateReset(r domain.PasswordReset) error {
	v := validator{}
	v.email("email", r.Email)
	v.require("otp", r.OTP, "رمز التحقق مطلوب")
	v.password("newPassword", r.NewPassword)
	v.match("confirmPassword", r.ConfirmPassword, r.NewPassword)
	return v.err()
}
