package checkout

import (
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ContactInfo is the shipping contact collected on the checkout form.
type ContactInfo struct {
	FullName string `json:"fullName" validate:"required"`
	Phone    string `json:"phone" validate:"required,mobile"`
	Email    string `json:"email" validate:"required,email"`
	Address  string `json:"address" validate:"required"`
	City     string `json:"city" validate:"required"`
	Country  string `json:"country,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// FieldErrors maps a form field (json name) to its message.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	fields := make([]string, 0, len(f))
	for k := range f {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return "invalid fields: " + strings.Join(fields, ", ")
}

// national mobile numbers: +84 or 0, a carrier prefix, eight digits
var mobilePattern = regexp.MustCompile(`^(\+84|0)(3|5|7|8|9)\d{8}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("mobile", func(fl validator.FieldLevel) bool {
		return mobilePattern.MatchString(fl.Field().String())
	})
	return v
}

var labels = map[string]string{
	"fullName": "Full name",
	"phone":    "Phone number",
	"email":    "Email",
	"address":  "Address",
	"city":     "City",
}

func (c ContactInfo) normalized() ContactInfo {
	c.FullName = strings.TrimSpace(c.FullName)
	c.Phone = strings.ReplaceAll(strings.TrimSpace(c.Phone), " ", "")
	c.Email = strings.TrimSpace(c.Email)
	c.Address = strings.TrimSpace(c.Address)
	c.City = strings.TrimSpace(c.City)
	c.Country = strings.TrimSpace(c.Country)
	return c
}

// Validate returns nil when c can be submitted.
func Validate(c ContactInfo) FieldErrors {
	err := validate.Struct(c.normalized())
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return FieldErrors{"form": err.Error()}
	}
	out := FieldErrors{}
	for _, fe := range verrs {
		label := labels[fe.Field()]
		switch fe.Tag() {
		case "required":
			out[fe.Field()] = label + " is required"
		case "mobile":
			out[fe.Field()] = "Enter a valid mobile number"
		case "email":
			out[fe.Field()] = "Enter a valid email address"
		default:
			out[fe.Field()] = label + " is invalid"
		}
	}
	return out
}

// merge fills the empty fields of c from fallback.
func (c ContactInfo) merge(fallback ContactInfo) ContactInfo {
	pick := func(a, b string) string {
		if strings.TrimSpace(a) != "" {
			return a
		}
		return b
	}
	return ContactInfo{
		FullName: pick(c.FullName, fallback.FullName),
		Phone:    pick(c.Phone, fallback.Phone),
		Email:    pick(c.Email, fallback.Email),
		Address:  pick(c.Address, fallback.Address),
		City:     pick(c.City, fallback.City),
		Country:  pick(c.Country, fallback.Country),
		Notes:    pick(c.Notes, fallback.Notes),
	}
}
