package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func init() {
	// Monetary amounts travel as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// ParseError describes an inbound payload that could not be decoded.
type ParseError struct {
	Raw    string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s: %v", e.Reason, e.Err)
	}
	return "protocol: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// requiredFields lists the keys each message type must carry. A key with a
// null value counts as missing.
var requiredFields = map[Kind][]string{
	KindText:     {"message"},
	KindCarousel: {"products"},
	KindCart:     {"cart_id", "user_id", "items", "total"},
	KindFunction: {"name", "args"},
}

// Decode strictly decodes one inbound wire message.
func Decode(raw string) (Message, error) {
	data := []byte(raw)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		if err == nil {
			err = errors.New("message must be a JSON object")
		}
		return nil, &ParseError{Raw: raw, Reason: "invalid JSON message", Err: err}
	}

	var base BaseMessage
	if t, ok := fields["type"]; ok {
		if err := json.Unmarshal(t, &base.Type); err != nil {
			return nil, &ParseError{Raw: raw, Reason: "invalid message type", Err: err}
		}
	}

	var msg Message
	switch base.Type {
	case KindText:
		msg = &TextMessage{}
	case KindCarousel:
		msg = &CarouselMessage{}
	case KindCart:
		msg = &CartMessage{}
	case KindFunction:
		msg = &FunctionMessage{}
	case "":
		return nil, &ParseError{Raw: raw, Reason: "missing message type"}
	default:
		return nil, &ParseError{Raw: raw, Reason: "unknown message type: " + string(base.Type)}
	}

	for _, key := range requiredFields[base.Type] {
		v, ok := fields[key]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return nil, &ParseError{Raw: raw, Reason: "invalid " + string(base.Type) + " message: missing " + key}
		}
	}
	if base.Type == KindFunction {
		if args := bytes.TrimSpace(fields["args"]); len(args) == 0 || args[0] != '{' {
			return nil, &ParseError{Raw: raw, Reason: "invalid function message: args must be an object"}
		}
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, &ParseError{Raw: raw, Reason: "invalid " + string(base.Type) + " message", Err: err}
	}
	if err := validate.Struct(msg); err != nil {
		return nil, &ParseError{Raw: raw, Reason: "invalid " + string(base.Type) + " message", Err: err}
	}
	return msg, nil
}

// Parse decodes an inbound message and never fails: undecodable input is
// returned verbatim as a fallback text message.
func Parse(raw string) Message {
	msg, err := Decode(raw)
	if err != nil {
		fallback := NewText(raw)
		fallback.Fallback = true
		return fallback
	}
	return msg
}

// EncodeOutbound encodes a user message for the backend. User messages are
// sent as plain text.
func EncodeOutbound(text string) string {
	return text
}

// Marshal encodes a message with its type tag set.
func Marshal(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case *TextMessage:
		m.Type = KindText
	case *CarouselMessage:
		m.Type = KindCarousel
	case *CartMessage:
		m.Type = KindCart
	case *FunctionMessage:
		m.Type = KindFunction
		if len(m.Args) == 0 {
			m.Args = json.RawMessage(`{}`)
		}
	default:
		return nil, fmt.Errorf("protocol: cannot marshal %T", msg)
	}
	return json.Marshal(msg)
}

// DecodeArgs decodes and validates function-call arguments into v.
func DecodeArgs(fn *FunctionMessage, v any) error {
	args := fn.Args
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("decode %s args: %w", fn.Name, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid %s args: %w", fn.Name, err)
	}
	return nil
}

// Validate checks the validation tags of a protocol value such as a Product.
func Validate(v any) error {
	return validate.Struct(v)
}
