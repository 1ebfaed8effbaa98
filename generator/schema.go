package generator

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names so violations read like the payload the model sent
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// extractJSON pulls the outermost JSON object out of a model reply,
// tolerating ``` fences and chatter around it.
func extractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", errors.New("no JSON object in response")
	}
	return s[start : end+1], nil
}

// describe renders validator errors as one line.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, describeField(fe))
	}
	return strings.Join(parts, "; ")
}

func describeField(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), firstSegment(fe.Namespace())+".")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "len":
		return fmt.Sprintf("%s must have exactly %s items", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must have at least %s items", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fmt.Sprint(fe.Value()))
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

func firstSegment(ns string) string {
	head, _, _ := strings.Cut(ns, ".")
	return head
}

// decodeOutput parses raw into T and validates it. The returned string
// describes the violation when err is not nil.
func decodeOutput[T any](raw string, check func(T) error) (T, string, error) {
	var out T
	payload, err := extractJSON(raw)
	if err != nil {
		return out, err.Error(), err
	}
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return out, "malformed JSON: " + err.Error(), err
	}
	if err := validate.Struct(out); err != nil {
		return out, describe(err), err
	}
	if check != nil {
		if err := check(out); err != nil {
			return out, err.Error(), err
		}
	}
	return out, "", nil
}
