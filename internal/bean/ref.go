package bean

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Ref is how callers outside the engine name a bean: a bare id, a full
// bean object, or a {"bean": {...}} wrapper. Resolve turns it into a Bean.
type Ref struct {
	ID   string
	Bean *Bean
}

// RefID builds a Ref from an id.
func RefID(id string) Ref { return Ref{ID: id} }

// RefOf builds a Ref that already carries the bean.
func RefOf(b Bean) Ref { return Ref{ID: b.ID, Bean: &b} }

// IsZero reports whether the ref names nothing (JSON null or empty string).
func (r Ref) IsZero() bool { return r.ID == "" && r.Bean == nil }

func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = Ref{}
		return nil
	}

	switch data[0] {
	case '"':
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = Ref{ID: id}
		return nil
	case '{':
		var wrapper struct {
			Bean *Bean `json:"bean"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return err
		}
		if wrapper.Bean != nil {
			*r = Ref{ID: wrapper.Bean.ID, Bean: wrapper.Bean}
			return nil
		}
		var b Bean
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		if b.ID == "" {
			return errors.New("bean reference has no id")
		}
		*r = Ref{ID: b.ID, Bean: &b}
		return nil
	}
	return fmt.Errorf("bean reference must be an id string or object, got %s", string(data))
}

func (r Ref) MarshalJSON() ([]byte, error) {
	if r.Bean != nil {
		return json.Marshal(r.Bean)
	}
	if r.ID == "" {
		return []byte("null"), nil
	}
	return json.Marshal(r.ID)
}

// Resolve returns the canonical bean. A ref that only carries an id is
// fetched through lookup; a ref that carries a full bean with a type is
// returned as-is.
func (r Ref) Resolve(ctx context.Context, lookup func(context.Context, string) (Bean, error)) (Bean, error) {
	if r.Bean != nil && r.Bean.Type != "" {
		return *r.Bean, nil
	}
	if r.ID == "" {
		return Bean{}, errors.New("empty bean reference")
	}
	b, err := lookup(ctx, r.ID)
	if err != nil {
		return Bean{}, fmt.Errorf("resolve bean %s: %w", r.ID, err)
	}
	return b, nil
}
