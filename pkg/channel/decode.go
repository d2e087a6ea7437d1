package channel

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

type failureShape struct {
	Error struct {
		Code    string `mapstructure:"code"`
		Message string `mapstructure:"message"`
		Details any    `mapstructure:"details"`
	} `mapstructure:"error"`
}

type errorShape struct {
	Message string `mapstructure:"message"`
	Details any    `mapstructure:"details"`
}

// decodeLoose decodes a raw JSON payload into out, tolerating numbers where strings are expected.
func decodeLoose(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty payload")
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(generic)
}

func decodeFailure(msg domain.Message) (*DomainError, bool) {
	var shape failureShape
	if err := decodeLoose(msg.Payload, &shape); err != nil {
		return nil, false
	}
	if shape.Error.Code == "" && shape.Error.Message == "" {
		return nil, false
	}
	return &DomainError{
		RequestID: msg.RequestID,
		Code:      shape.Error.Code,
		Message:   shape.Error.Message,
		Details:   stringify(shape.Error.Details),
	}, true
}

func decodeGeneric(msg domain.Message) *ResponseError {
	re := &ResponseError{RequestID: msg.RequestID, Type: string(msg.Type)}
	var shape errorShape
	if err := decodeLoose(msg.Payload, &shape); err != nil || shape.Message == "" {
		re.Message = "host reported an error"
		if len(msg.Payload) > 0 {
			re.Details = string(msg.Payload)
		}
		return re
	}
	re.Message = shape.Message
	re.Details = stringify(shape.Details)
	return re
}

func stringify(v any) string {
	switch d := v.(type) {
	case nil:
		return ""
	case string:
		return d
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return fmt.Sprint(d)
		}
		return string(b)
	}
}
