package intent

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "leadbot/cli/internal/errors"
)

// keyPattern restricts keys to something a CRM field name can be derived from.
var keyPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_ -]{0,79}$`)

// rawIntent is the wire shape the oracle is instructed to produce.
type rawIntent struct {
	Tool    string          `json:"tool" validate:"required"`
	Action  string          `json:"action" validate:"required,oneof=create update delete"`
	Object  string          `json:"object" validate:"required"`
	Filters json.RawMessage `json:"filters"`
	Fields  json.RawMessage `json:"fields"`
}

// Validator turns raw JSON into an Intent, enforcing schema and per-action
// invariants. It is safe for concurrent use.
type Validator struct {
	tool    string
	objects map[string]string
	v       *validator.Validate
}

// NewValidator returns a Validator accepting intents for tool that address
// one of objects. Matching of both is case-insensitive; the configured
// spelling of the object is what the resulting Intent carries.
func NewValidator(tool string, objects ...string) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("crmfield", func(fl validator.FieldLevel) bool {
		return keyPattern.MatchString(fl.Field().String())
	})
	m := make(map[string]string, len(objects))
	for _, o := range objects {
		m[strings.ToLower(o)] = o
	}
	return &Validator{tool: strings.ToLower(tool), objects: m, v: v}
}

// Validate parses raw and returns the validated Intent. All failures are
// SchemaViolation errors except input that is not a JSON object at all,
// which is MalformedOutput.
func (val *Validator) Validate(raw []byte) (Intent, error) {
	var r rawIntent
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&r); err != nil {
		var typeErr *json.UnmarshalTypeError
		if stderrors.As(err, &typeErr) && typeErr.Field != "" {
			return Intent{}, violation(fmt.Sprintf("%s has the wrong type", typeErr.Field))
		}
		return Intent{}, apperrors.Wrap(apperrors.MalformedOutput, "intent is not a JSON object", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Intent{}, apperrors.New(apperrors.MalformedOutput, "unexpected data after intent object")
	}

	r.Tool = strings.ToLower(strings.TrimSpace(r.Tool))
	r.Action = strings.ToLower(strings.TrimSpace(r.Action))
	r.Object = strings.TrimSpace(r.Object)

	if err := val.v.Struct(r); err != nil {
		return Intent{}, violation(describe(err))
	}
	if r.Tool != val.tool {
		return Intent{}, violation(fmt.Sprintf("unsupported tool %q", r.Tool))
	}
	object, ok := val.objects[strings.ToLower(r.Object)]
	if !ok {
		return Intent{}, violation(fmt.Sprintf("unsupported object %q", r.Object))
	}

	filters, err := val.decodeObject("filters", r.Filters)
	if err != nil {
		return Intent{}, err
	}
	fields, err := val.decodeObject("fields", r.Fields)
	if err != nil {
		return Intent{}, err
	}

	in := Intent{
		Tool:    r.Tool,
		Action:  Action(r.Action),
		Object:  object,
		Filters: filters,
		Fields:  fields,
	}
	if err := checkAction(in); err != nil {
		return Intent{}, err
	}
	return in, nil
}

func checkAction(in Intent) error {
	switch in.Action {
	case Create:
		if in.Fields.Len() == 0 {
			return violation("create requires fields")
		}
		if _, ok := in.DisplayName(); !ok {
			return violation("create requires a name field")
		}
	case Update:
		if _, ok := in.LookupName(); !ok {
			return violation("update requires a name filter")
		}
		if in.Fields.Len() == 0 {
			return violation("update requires at least one field to change")
		}
	case Delete:
		if _, ok := in.LookupName(); !ok {
			return violation("delete requires a name filter")
		}
	}
	return nil
}

// decodeObject reads a flat JSON object of scalar values, keeping key order.
func (val *Validator) decodeObject(name string, raw json.RawMessage) (Fields, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Fields{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return Fields{}, violation(name + " is not valid JSON")
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return Fields{}, violation(name + " must be an object")
	}

	var items []Field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Fields{}, violation(name + " is not valid JSON")
		}
		key, _ := tok.(string)
		if err := val.v.Var(key, "required,crmfield"); err != nil {
			return Fields{}, violation(fmt.Sprintf("invalid key %q in %s", key, name))
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return Fields{}, violation(name + " is not valid JSON")
		}
		switch value.(type) {
		case string, json.Number, bool, nil:
		default:
			return Fields{}, violation(fmt.Sprintf("value of %q in %s must be a string, number, boolean or null", key, name))
		}
		items = append(items, Field{Name: key, Value: value})
	}

	fields, err := NewFields(items...)
	if err != nil {
		return Fields{}, violation(fmt.Sprintf("%s: %v", name, err))
	}
	return fields, nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

func violation(msg string) *apperrors.E {
	return apperrors.New(apperrors.SchemaViolation, msg)
}
