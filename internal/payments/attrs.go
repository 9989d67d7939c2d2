package payments

import (
	"encoding/json"
	"fmt"
)

// Attrs is a key/value view over a payment's ExtraData JSON object.
type Attrs struct {
	p *Payment
}

func (p *Payment) Attrs() Attrs {
	return Attrs{p: p}
}

func (a Attrs) decode() (map[string]any, error) {
	data := map[string]any{}
	if a.p.ExtraData == "" {
		return data, nil
	}
	if err := json.Unmarshal([]byte(a.p.ExtraData), &data); err != nil {
		return nil, fmt.Errorf("decode extra data: %w", err)
	}
	return data, nil
}

// Get returns the stored value for key. Numbers come back as float64.
func (a Attrs) Get(key string) (any, error) {
	data, err := a.decode()
	if err != nil {
		return nil, err
	}
	v, ok := data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAttrNotFound, key)
	}
	return v, nil
}

func (a Attrs) GetString(key string) (string, error) {
	v, err := a.Get(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("attribute %s is %T, not a string", key, v)
	}
	return s, nil
}

// Set stores value under key. Unreadable ExtraData is replaced with a fresh
// object rather than failing the write.
func (a Attrs) Set(key string, value any) error {
	data, err := a.decode()
	if err != nil {
		data = map[string]any{}
	}
	data[key] = value

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode extra data: %w", err)
	}
	a.p.ExtraData = string(raw)
	return nil
}
