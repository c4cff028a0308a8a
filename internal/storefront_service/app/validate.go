package app

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/banoo-shop/storefront/internal/storefront_service/domain"
)

var (
	iranMobile = regexp.MustCompile(`^09\d{9}$`)
	otpCode    = regexp.MustCompile(`^\d{6}$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("ir_mobile", func(fl validator.FieldLevel) bool {
		return iranMobile.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("otp", func(fl validator.FieldLevel) bool {
		return otpCode.MatchString(fl.Field().String())
	})
	return v
}

// Validator exposes the shared instance so HTTP DTOs use the same rules.
func Validator() *validator.Validate { return validate }

// ValidateStruct runs the struct tags on in and converts failures into a
// *domain.ValidationError keyed by json field name.
func ValidateStruct(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &domain.ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Fields[fe.Field()] = describe(fe)
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "ir_mobile":
		return "must be a mobile number like 09123456789"
	case "otp":
		return "must be a 6 digit code"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "email":
		return "must be a valid email"
	case "excludes":
		return "must not contain " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "is invalid"
	}
}

type LoginInput struct {
	Phone string `json:"phone" validate:"required,ir_mobile"`
}

type VerifyOTPInput struct {
	Phone string `json:"phone" validate:"required,ir_mobile"`
	Code  string `json:"code" validate:"required,otp"`
}

type RegisterInput struct {
	FirstName string `json:"first_name" validate:"required,max=64"`
	LastName  string `json:"last_name" validate:"required,max=64"`
	Email     string `json:"email" validate:"omitempty,email"`
}

type AddItemInput struct {
	ProductID string `json:"productId" validate:"required,max=64,excludes=|"`
	Color     string `json:"color" validate:"max=64,excludes=|"`
	Size      string `json:"size" validate:"max=32,excludes=|"`
	Quantity  int    `json:"quantity" validate:"min=1,max=99"`
}
