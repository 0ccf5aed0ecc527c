package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"tophome-storefront/internal/api"
	"tophome-storefront/internal/auth"
	"tophome-storefront/internal/domain"
	"tophome-storefront/internal/middleware"
	"tophome-storefront/internal/observability"
	"tophome-storefront/internal/shopper"
)

// ShopperRotator re-keys a shopper under a fresh id
type ShopperRotator interface {
	Rotate(ctx context.Context, id string) (*shopper.Shopper, error)
}

// AuthHandler serves the login, registration and password recovery pages
type AuthHandler struct {
	renderer     *Renderer
	shoppers     ShopperRotator
	secureCookie bool
}

// NewAuthHandler creates a new authentication handler. Shoppers get a new
// id whenever they sign in or out.
func NewAuthHandler(renderer *Renderer, shoppers ShopperRotator, secureCookie bool) *AuthHandler {
	return &AuthHandler{
		renderer:     renderer,
		shoppers:     shoppers,
		secureCookie: secureCookie,
	}
}

// redirect captures the facade's navigation so it becomes the response
type redirect struct {
	path string
}

func (n *redirect) Navigate(path string) {
	n.path = path
}

// SessionResponse is the public view of the session; the token stays server side
type SessionResponse struct {
	IsAuthenticated bool   `json:"isAuthenticated"`
	UserName        string `json:"userName,omitempty"`
	Email           string `json:"email,omitempty"`
}

func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	data := newPage(r, "تسجيل الدخول")
	data.Form = map[string]string{"email": r.URL.Query().Get("email")}
	if r.URL.Query().Get("reset") == "1" {
		data.Notice = "تم تغيير كلمة المرور، يمكنك تسجيل الدخول الآن"
	}
	h.renderer.Render(w, r, http.StatusOK, PageLogin, data)
}

// Login handles the login form
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	sh, ok := h.shopper(w, r)
	if !ok {
		return
	}

	creds := domain.Credentials{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}

	nav := &redirect{}
	form := map[string]string{"email": creds.Email}
	if err := sh.Auth(nav).Login(r.Context(), creds); err != nil {
		h.renderFormError(w, r, PageLogin, "تسجيل الدخول", err, form)
		return
	}
	if err := h.rotateSignedIn(w, r, sh); err != nil {
		h.renderFormError(w, r, PageLogin, "تسجيل الدخول", err, form)
		return
	}
	http.Redirect(w, r, nav.path, http.StatusSeeOther)
}

func (h *AuthHandler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, PageRegister, newPage(r, "إنشاء حساب"))
}

// Register handles the registration form
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	sh, ok := h.shopper(w, r)
	if !ok {
		return
	}

	reg := domain.Registration{
		FullName:        strings.TrimSpace(r.PostFormValue("fullName")),
		Email:           strings.TrimSpace(r.PostFormValue("email")),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirmPassword"),
		PhoneNumber:     strings.TrimSpace(r.PostFormValue("phoneNumber")),
	}

	nav := &redirect{}
	form := map[string]string{
		"fullName":    reg.FullName,
		"email":       reg.Email,
		"phoneNumber": reg.PhoneNumber,
	}
	if err := sh.Auth(nav).Register(r.Context(), reg); err != nil {
		h.renderFormError(w, r, PageRegister, "إنشاء حساب", err, form)
		return
	}
	if err := h.rotateSignedIn(w, r, sh); err != nil {
		h.renderFormError(w, r, PageRegister, "إنشاء حساب", err, form)
		return
	}
	http.Redirect(w, r, nav.path, http.StatusSeeOther)
}

// Logout clears the session. The redirect to the login page happens even
// when the cleared session could not be persisted.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sh, ok := h.shopper(w, r)
	if !ok {
		return
	}

	nav := &redirect{}
	if err := sh.Auth(nav).Logout(r.Context()); err != nil {
		observability.FromContext(r.Context()).Error("logout not persisted", slog.String("error", err.Error()))
	} else if err := h.rotate(w, r, sh); err != nil {
		observability.FromContext(r.Context()).Error("shopper id not rotated after logout", slog.String("error", err.Error()))
	}
	http.Redirect(w, r, nav.path, http.StatusSeeOther)
}

// rotate moves the shopper to a fresh id and sets it on the response
func (h *AuthHandler) rotate(w http.ResponseWriter, r *http.Request, sh *shopper.Shopper) error {
	fresh, err := h.shoppers.Rotate(r.Context(), sh.ID)
	if err != nil {
		return err
	}
	middleware.SetShopperCookie(w, fresh.ID, h.secureCookie)
	return nil
}

// rotateSignedIn rotates a freshly signed in shopper. If that fails the
// session is dropped, since the old id may be known to someone else.
func (h *AuthHandler) rotateSignedIn(w http.ResponseWriter, r *http.Request, sh *shopper.Shopper) error {
	err := h.rotate(w, r, sh)
	if err == nil {
		return nil
	}
	if logoutErr := sh.Session.Logout(r.Context()); logoutErr != nil {
		observability.FromContext(r.Context()).Error("failed to drop unrotated session",
			slog.String("error", logoutErr.Error()))
	}
	return fmt.Errorf("failed to rotate shopper id: %w", err)
}

func (h *AuthHandler) ForgotPasswordPage(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, PageForgotPassword, newPage(r, "استعادة كلمة المرور"))
}

// ForgotPassword requests a one-time code and moves on to its verification
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	sh, ok := h.shopper(w, r)
	if !ok {
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))
	nav := &redirect{}
	if err := sh.Auth(nav).ForgotPassword(r.Context(), email); err != nil {
		h.renderFormError(w, r, PageForgotPassword, "استعادة كلمة المرور", err, map[string]string{"email": email})
		return
	}
	http.Redirect(w, r, withQuery(nav.path, url.Values{"email": {email}}), http.StatusSeeOther)
}

func (h *AuthHandler) VerifyOTPPage(w http.ResponseWriter, r *http.Request) {
	data := newPage(r, "تأكيد الرمز")
	data.Form = map[string]string{"email": r.URL.Query().Get("email")}
	h.renderer.Render(w, r, http.StatusOK, PageVerifyOTP, data)
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	sh, ok := h.shopper(w, r)
	if !ok {
		return
	}

	v := domain.OTPVerification{
		Email: strings.TrimSpace(r.PostFormValue("email")),
		OTP:   strings.TrimSpace(r.PostFormValue("otp")),
	}
	nav := &redirect{}
	if err := sh.Auth(nav).VerifyOTP(r.Context(), v); err != nil {
		h.renderFormError(w, r, PageVerifyOTP, "تأكيد الرمز", err, map[string]string{"email": v.Email})
		return
	}
	http.Redirect(w, r, withQuery(nav.path, url.Values{"email": {v.Email}, "otp": {v.OTP}}), http.StatusSeeOther)
}

// ResendOTP mails a fresh code and stays on the verification page
func (h *AuthHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	sh, ok := h.shopper(w, r)
	if !ok {
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))
	form := map[string]string{"email": email}
	if err := sh.Auth(&redirect{}).ResendOTP(r.Context(), email); err != nil {
		h.renderFormError(w, r, PageVerifyOTP, "تأكيد الرمز", err, form)
		return
	}

	data := newPage(r, "تأكيد الرمز")
	data.Form = form
	data.Notice = "تم إرسال رمز جديد إلى بريدك الإلكتروني"
	h.renderer.Render(w, r, http.StatusOK, PageVerifyOTP, data)
}

func (h *AuthHandler) ResetPasswordPage(w http.ResponseWriter, r *http.Request) {
	data := newPage(r, "كلمة مرور جديدة")
	data.Form = map[string]string{
		"email": r.URL.Query().Get("email"),
		"otp":   r.URL.Query().Get("otp"),
	}
	h.renderer.Render(w, r, http.StatusOK, PageResetPassword, data)
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	sh, ok := h.shopper(w, r)
	if !ok {
		return
	}

	reset := domain.PasswordReset{
		Email:           strings.TrimSpace(r.PostFormValue("email")),
		OTP:             strings.TrimSpace(r.PostFormValue("otp")),
		NewPassword:     r.PostFormValue("newPassword"),
		ConfirmPassword: r.PostFormValue("confirmPassword"),
	}
	nav := &redirect{}
	if err := sh.Auth(nav).ResetPassword(r.Context(), reset); err != nil {
		h.renderFormError(w, r, PageResetPassword, "كلمة مرور جديدة", err, map[string]string{
			"email": reset.Email,
			"otp":   reset.OTP,
		})
		return
	}
	http.Redirect(w, r, withQuery(nav.path, url.Values{"reset": {"1"}, "email": {reset.Email}}), http.StatusSeeOther)
}

// Session returns the current session without its token
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	sh, ok := h.shopper(w, r)
	if !ok {
		return
	}
	s := sh.Session.Snapshot()
	writeJSON(w, http.StatusOK, SessionResponse{
		IsAuthenticated: s.IsAuthenticated,
		UserName:        s.UserName,
		Email:           s.Email,
	})
}

func (h *AuthHandler) shopper(w http.ResponseWriter, r *http.Request) (*shopper.Shopper, bool) {
	sh, ok := middleware.GetShopper(r.Context())
	if !ok {
		http.Error(w, `{"error":"Shopper not found"}`, http.StatusInternalServerError)
		return nil, false
	}
	return sh, true
}

// renderFormError re-renders a form page with the failure. Validation
// errors are shown per field and everything else as one message.
func (h *AuthHandler) renderFormError(w http.ResponseWriter, r *http.Request, page, title string, err error, form map[string]string) {
	data := newPage(r, title)
	data.Form = form

	status := http.StatusBadRequest
	var verr *auth.ValidationError
	var apiErr *api.Error
	switch {
	case errors.As(err, &verr):
		data.Fields = verr.Fields
	case errors.As(err, &apiErr):
		data.Error = apiErr.Message
		if apiErr.Status == http.StatusUnauthorized {
			status = http.StatusUnauthorized
		} else if apiErr.Status == 0 || apiErr.Status >= 500 {
			status = http.StatusBadGateway
		}
	default:
		observability.FromContext(r.Context()).Error("form submission failed",
			slog.String("page", page),
			slog.String("error", err.Error()))
		data.Error = api.FallbackMessage
		status = http.StatusInternalServerError
	}

	h.renderer.Render(w, r, status, page, data)
}

func withQuery(path string, values url.Values) string {
	return path + "?" + values.Encode()
}
