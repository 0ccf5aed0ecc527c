package domain

// Credentials is the login form.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the sign-up form.
type Registration struct {
	FullName        string `json:"fullName"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	PhoneNumber     string `json:"phoneNumber"`
}

// AuthResult is returned by the remote login and register endpoints.
type AuthResult struct {
	Token    string `json:"token"`
	UserName string `json:"userName"`
	Email    string `json:"email"`
}

// OTPVerification confirms the one-time code mailed to the shopper.
type OTPVerification struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// PasswordReset sets a new password using a verified one-time code.
type PasswordReset struct {
	Email           string `json:"email"`
	OTP             string `json:"otp"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}
