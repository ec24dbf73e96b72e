package session

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
)

// defaultPhoneRegion is assumed for phone numbers submitted without a
// country prefix.
const defaultPhoneRegion = "US"

// User is the cached copy of the account record. The authoritative copy
// lives server-side; this one may go stale between refreshes.
type User struct {
	ID             uuid.UUID  `json:"id"`
	Email          string     `json:"email"`
	Name           string     `json:"displayName"`
	Phone          string     `json:"phone,omitempty"`
	EmailVerified  bool       `json:"isEmailVerified"`
	FavoritesCount int        `json:"favoritesCount"`
	CreatedAt      *time.Time `json:"createdAt,omitempty"`
	LastLoginAt    *time.Time `json:"lastLoginAt,omitempty"`
}

// TokenPair is the unit of credential storage. A pair is stored or replaced
// wholesale, never one half at a time.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Valid reports whether both halves are present.
func (p TokenPair) Valid() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

// AuthResponse is the wire shape shared by register, login, refresh, and
// verify-email. Either the token fields are set, or RequiresVerification is
// true and no credentials were issued.
type AuthResponse struct {
	User                 *User  `json:"user,omitempty"`
	AccessToken          string `json:"accessToken,omitempty"`
	RefreshToken         string `json:"refreshToken,omitempty"`
	RequiresVerification bool   `json:"requiresVerification,omitempty"`
	Email                string `json:"email,omitempty"`
}

// Tokens returns the embedded pair; it is only meaningful when
// RequiresVerification is false.
func (r *AuthResponse) Tokens() TokenPair {
	return TokenPair{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
}

// AuthResult is what Manager operations hand back to the UI so it can route
// either into the app or into the "check your email" flow.
type AuthResult struct {
	State                State
	User                 *User
	RequiresVerification bool
	Email                string
}

// LoginRequest is transient: validated, sent, never persisted.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"-"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

type RegisterRequest struct {
	Name            string `json:"displayName"`
	Email           string `json:"email"`
	Phone           string `json:"phone,omitempty"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Remember        bool   `json:"-"`
}

func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, validation.By(ValidatePhoneNumber)),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

type UpdateProfileRequest struct {
	Name  string `json:"displayName,omitempty"`
	Phone string `json:"phone,omitempty"`
}

func (r UpdateProfileRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Length(1, 200)),
		validation.Field(&r.Phone, validation.By(ValidatePhoneNumber)),
	)
}

type ResetPasswordRequest struct {
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (r ResetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.NewPassword, validation.Required, validation.Length(8, 100)),
		validation.Field(&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.NewPassword)),
		),
	)
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (r ChangePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(8, 100)),
		validation.Field(&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.NewPassword)),
		),
	)
}

// ValidateStringEquals builds a rule asserting the value matches str.
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// ValidatePhoneNumber accepts empty values; non-empty values must parse as a
// valid phone number, assuming defaultPhoneRegion when no prefix is given.
func ValidatePhoneNumber(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	num, err := phonenumbers.Parse(s, defaultPhoneRegion)
	if err != nil {
		return errors.New("must be a valid phone number")
	}
	if !phonenumbers.IsValidNumber(num) {
		return errors.New("must be a valid phone number")
	}
	return nil
}

// invalidPayload converts an ozzo validation result into the package
// taxonomy, preserving field-level messages as a details map.
func invalidPayload(err error) error {
	if err == nil {
		return nil
	}
	details := map[string]any{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			details[field] = ferr.Error()
		}
	} else {
		details["payload"] = err.Error()
	}
	return cloneWithMetadata(ErrValidation, map[string]any{"details": details})
}
