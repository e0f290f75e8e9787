package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	gojson "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Prefix marks a transport payload as belonging to this protocol. Payloads
// without it are somebody else's traffic and are ignored.
const Prefix = "[MESSAGE_PREFIX]"

// ErrParseFailure is wrapped by every error returned from Parse.
var ErrParseFailure = errors.New("envelope: parse failure")

const emptyObject = `{}`

// Envelope is the typed form of one transport message.
type Envelope struct {
	Type    Command         `json:"type"`
	Target  string          `json:"target,omitempty"`
	Source  string          `json:"source,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
}

// Decode unmarshals the envelope content into v.
func (e Envelope) Decode(v any) error {
	if len(e.Content) == 0 {
		return fmt.Errorf("envelope: %s from %q has no content", e.Type, e.Source)
	}
	return gojson.Unmarshal(e.Content, v)
}

// Marshal converts an arbitrary value into envelope content.
// A nil value produces empty content.
func Marshal(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := gojson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal content: %w", err)
	}
	return b, nil
}

// Encode serializes e into a prefixed transport payload.
func Encode(e Envelope) (string, error) {
	wire, err := e.Type.MarshalText()
	if err != nil {
		return "", err
	}

	result, err := sjson.Set(emptyObject, "type", string(wire))
	if err != nil {
		return "", err
	}

	// multicast requests carry an explicit empty target
	if e.Target != "" || e.Type == MulticastMessage {
		result, err = sjson.Set(result, "target", e.Target)
		if err != nil {
			return "", err
		}
	}

	if e.Source != "" {
		result, err = sjson.Set(result, "source", e.Source)
		if err != nil {
			return "", err
		}
	}

	if len(e.Content) > 0 {
		if !gjson.ValidBytes(e.Content) {
			return "", fmt.Errorf("envelope: content is not valid json: %s", e.Content)
		}
		result, err = sjson.SetRaw(result, "content", string(e.Content))
		if err != nil {
			return "", err
		}
	}

	return Prefix + result, nil
}

// Parse turns a raw transport payload into an Envelope. Any input that does not
// carry the prefix, is not a JSON object, or names an unknown command yields an
// error wrapping ErrParseFailure.
func Parse(raw string) (Envelope, error) {
	body, ok := strings.CutPrefix(raw, Prefix)
	if !ok {
		return Envelope{}, fmt.Errorf("%w: missing prefix", ErrParseFailure)
	}
	if !gjson.Valid(body) {
		return Envelope{}, fmt.Errorf("%w: invalid json", ErrParseFailure)
	}

	doc := gjson.Parse(body)
	if !doc.IsObject() {
		return Envelope{}, fmt.Errorf("%w: expected a json object", ErrParseFailure)
	}

	typ := doc.Get("type")
	if typ.Type != gjson.String {
		return Envelope{}, fmt.Errorf("%w: missing or invalid type", ErrParseFailure)
	}
	cmd, ok := ParseCommand(typ.Str)
	if !ok {
		return Envelope{}, fmt.Errorf("%w: unknown command %q", ErrParseFailure, typ.Str)
	}

	env := Envelope{Type: cmd}

	var err error
	if env.Target, err = optionalString(doc, "target"); err != nil {
		return Envelope{}, err
	}
	if env.Source, err = optionalString(doc, "source"); err != nil {
		return Envelope{}, err
	}

	if content := doc.Get("content"); content.Exists() {
		env.Content = json.RawMessage(content.Raw)
	}
	return env, nil
}

func optionalString(doc gjson.Result, field string) (string, error) {
	v := doc.Get(field)
	switch v.Type {
	case gjson.Null:
		// absent or explicit null
		return "", nil
	case gjson.String:
		return v.Str, nil
	default:
		return "", fmt.Errorf("%w: %s must be a string", ErrParseFailure, field)
	}
}
