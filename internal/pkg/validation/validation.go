// Package validation checks request DTOs with go-playground/validator tags.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Struct validates v and returns a ValidationError listing every failed field.
func Struct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
	}
	return out
}

type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

func (f FieldError) String() string {
	if f.Param != "" {
		return fmt.Sprintf("%s failed %s=%s", f.Field, f.Rule, f.Param)
	}
	return fmt.Sprintf("%s failed %s", f.Field, f.Rule)
}

type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return "Validation failed: " + strings.Join(parts, "; ")
}

// ParseUUID parses s, naming field in the error.
func ParseUUID(field, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("Invalid UUID format for %s", field)
	}
	return id, nil
}

// FieldTypeError reports whether err is a JSON decode failure on field, such
// as a fraction or a string where an integer was expected.
func FieldTypeError(err error, field string) bool {
	var te *json.UnmarshalTypeError
	return errors.As(err, &te) && te.Field == field
}
