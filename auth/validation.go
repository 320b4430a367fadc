package auth

import (
	"html"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jrsteele09/carnotes-server/users"
	"github.com/microcosm-cc/bluemonday"
)

// Field names as they appear in request bodies.
const (
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldConfirmPassword = "confirmPassword"
	FieldUserName        = "userName"
	FieldCurrentPassword = "currentPassword"
)

// Reasons are sent to the browser as-is.
const (
	ReasonEmailMandatory       = "Email is mandatory!"
	ReasonPasswordMandatory    = "Password is mandatory!"
	ReasonConfirmMandatory     = "Password confirmation is mandatory!"
	ReasonUserNameMandatory    = "Username is mandatory!"
	ReasonPasswordsDontMatch   = "Passwords do not match!"
	ReasonEmailInvalid         = "Email is not valid!"
	ReasonUserNameInvalid      = "Username is not valid!"
	ReasonPasswordTooShort     = "Password must contain at least 12 characters!"
	ReasonPasswordTooLong      = "Password must not exceed 72 bytes!"
	ReasonPasswordWeak         = "Password must include small letters, capital letters, numbers and special characters!"
	ReasonEmailRequired        = "Email required!"
	ReasonPasswordRequired     = "Password required!"
	ReasonCurrentPasswordEmpty = "Current password is mandatory!"
)

type RegisterInput struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	UserName        string `json:"userName"`
}

// Validator trims and checks user supplied credentials.
type Validator struct {
	policy   *bluemonday.Policy
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{
		policy:   bluemonday.StrictPolicy(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Sanitize trims surrounding whitespace. The value is otherwise kept as
// typed, so passwords are hashed and compared byte for byte.
func (v *Validator) Sanitize(s string) string {
	return strings.TrimSpace(s)
}

// HasMarkup reports whether s carries HTML the strict policy would strip.
// Plain text that the policy only escapes, like an apostrophe, is not markup.
func (v *Validator) HasMarkup(s string) bool {
	return html.UnescapeString(v.policy.Sanitize(s)) != s
}

// SanitizeRegister returns a copy of in with every field trimmed.
func (v *Validator) SanitizeRegister(in RegisterInput) RegisterInput {
	return RegisterInput{
		Email:           v.Sanitize(in.Email),
		Password:        v.Sanitize(in.Password),
		ConfirmPassword: v.Sanitize(in.ConfirmPassword),
		UserName:        v.Sanitize(in.UserName),
	}
}

// ValidateRegister runs the registration checks in order and reports the
// first failure. The duplicate email check needs the store and lives in the
// session service.
func (v *Validator) ValidateRegister(in RegisterInput) error {
	switch {
	case in.Email == "":
		return &ValidationError{Field: FieldEmail, Reason: ReasonEmailMandatory}
	case in.Password == "":
		return &ValidationError{Field: FieldPassword, Reason: ReasonPasswordMandatory}
	case in.ConfirmPassword == "":
		return &ValidationError{Field: FieldConfirmPassword, Reason: ReasonConfirmMandatory}
	case in.UserName == "":
		return &ValidationError{Field: FieldUserName, Reason: ReasonUserNameMandatory}
	case in.Password != in.ConfirmPassword:
		return &ValidationError{Field: FieldConfirmPassword, Reason: ReasonPasswordsDontMatch}
	}

	if err := v.ValidateEmail(in.Email); err != nil {
		return err
	}
	if v.HasMarkup(in.UserName) {
		return &ValidationError{Field: FieldUserName, Reason: ReasonUserNameInvalid}
	}
	return v.ValidatePassword(in.Password)
}

func (v *Validator) ValidateEmail(email string) error {
	if v.HasMarkup(email) {
		return &ValidationError{Field: FieldEmail, Reason: ReasonEmailInvalid}
	}
	if err := v.validate.Var(email, "required,email"); err != nil {
		return &ValidationError{Field: FieldEmail, Reason: ReasonEmailInvalid}
	}
	return nil
}

// ValidatePassword applies the length and strength policy.
func (v *Validator) ValidatePassword(password string) error {
	switch {
	case !users.PasswordLongEnough(password):
		return &ValidationError{Field: FieldPassword, Reason: ReasonPasswordTooShort}
	case len(password) > users.MaxPasswordBytes:
		return &ValidationError{Field: FieldPassword, Reason: ReasonPasswordTooLong}
	case !users.PasswordStrong(password):
		return &ValidationError{Field: FieldPassword, Reason: ReasonPasswordWeak}
	}
	return nil
}

// ValidateLogin only checks presence; wrong credentials are reported by Login.
func (v *Validator) ValidateLogin(email, password string) error {
	if email == "" {
		return &ValidationError{Field: FieldEmail, Reason: ReasonEmailRequired}
	}
	if password == "" {
		return &ValidationError{Field: FieldPassword, Reason: ReasonPasswordRequired}
	}
	return nil
}
