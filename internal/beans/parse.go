package beans

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/selfagency/beans-vscode-sub002/internal/bean"
)

// errorMessage returns the "error" field of a JSON error envelope, if any.
func errorMessage(out []byte) string {
	if !gjson.ValidBytes(out) {
		return ""
	}
	r := gjson.ParseBytes(out)
	if !r.IsObject() {
		return ""
	}
	if msg := r.Get("error"); msg.Exists() && msg.String() != "" {
		if msg.IsObject() {
			return msg.Get("message").String()
		}
		return msg.String()
	}
	return ""
}

func envelopeError(out []byte) error {
	msg := errorMessage(out)
	if msg == "" {
		return nil
	}
	if sentinel := classify(msg); sentinel != nil {
		return fmt.Errorf("%w: %s", sentinel, msg)
	}
	return errors.New(msg)
}

// parseList accepts a bare array or {"beans": [...]}.
func parseList(out []byte) ([]bean.Bean, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(out) {
		return nil, fmt.Errorf("parse list output: invalid JSON")
	}
	if err := envelopeError(out); err != nil {
		return nil, err
	}
	r := gjson.ParseBytes(out)
	if r.IsObject() {
		r = r.Get("beans")
	}
	if r.Type == gjson.Null {
		return nil, nil
	}
	if !r.IsArray() {
		return nil, fmt.Errorf("parse list output: expected an array of beans")
	}
	var beans []bean.Bean
	if err := json.Unmarshal([]byte(r.Raw), &beans); err != nil {
		return nil, fmt.Errorf("parse list output: %w", err)
	}
	return beans, nil
}

// parseOne accepts a bean object, {"bean": {...}}, or a one-element array.
func parseOne(out []byte) (bean.Bean, error) {
	out = bytes.TrimSpace(out)
	if !gjson.ValidBytes(out) {
		return bean.Bean{}, fmt.Errorf("parse show output: invalid JSON")
	}
	if err := envelopeError(out); err != nil {
		return bean.Bean{}, err
	}
	r := gjson.ParseBytes(out)
	if r.IsArray() {
		items := r.Array()
		if len(items) == 0 {
			return bean.Bean{}, ErrNotFound
		}
		r = items[0]
	}
	if w := r.Get("bean"); r.IsObject() && w.IsObject() {
		r = w
	}
	if !r.IsObject() {
		return bean.Bean{}, fmt.Errorf("parse show output: expected a bean object")
	}
	var b bean.Bean
	if err := json.Unmarshal([]byte(r.Raw), &b); err != nil {
		return bean.Bean{}, fmt.Errorf("parse show output: %w", err)
	}
	if b.ID == "" {
		return bean.Bean{}, fmt.Errorf("parse show output: bean has no id")
	}
	return b, nil
}
