package backend

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	textutil "querydeck/internal/pkg/text"

	"github.com/tidwall/gjson"
)

var errNoResult = errors.New("response has neither result nor error")

// Reply is one provider's entry in a multiplexed payload.
type Reply struct {
	Text string
	Err  error
}

// truthy decides whether an error field signals failure. Empty strings, zero,
// false and null do not.
func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.String:
		return r.Str != ""
	case gjson.Number:
		return r.Num != 0
	case gjson.True, gjson.JSON:
		return true
	default:
		return false
	}
}

func errorText(r gjson.Result) string {
	if r.Type == gjson.String {
		return r.Str
	}
	if msg := r.Get("message"); msg.Type == gjson.String && msg.Str != "" {
		return msg.Str
	}
	return r.Raw
}

// decodeReply applies the {result}|{error} contract to one JSON object.
func decodeReply(provider string, obj gjson.Result) (string, error) {
	if e := obj.Get("error"); truthy(e) {
		return "", &ProviderError{Provider: provider, Message: errorText(e)}
	}
	if res := obj.Get("result"); res.Exists() {
		return res.String(), nil
	}
	return "", errNoResult
}

// parseObject returns the body as a JSON object, or ok=false if it is anything else.
func parseObject(raw []byte) (gjson.Result, bool) {
	body := bytes.TrimSpace(raw)
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return gjson.Result{}, false
	}
	parsed := gjson.ParseBytes(body)
	if !parsed.IsObject() {
		return gjson.Result{}, false
	}
	return parsed, true
}

// normalizeResponse turns one HTTP exchange into result text or a typed error.
// A provider message in the body wins over the status code.
func normalizeResponse(op, url, provider string, status int, raw []byte) (string, error) {
	obj, ok := parseObject(raw)
	if status/100 != 2 {
		if ok {
			if e := obj.Get("error"); truthy(e) {
				return "", &ProviderError{Provider: provider, StatusCode: status, Message: errorText(e)}
			}
		}
		return "", &TransportError{Op: op, URL: url, StatusCode: status, Err: statusDetail(raw)}
	}
	if !ok {
		return "", &TransportError{Op: op, URL: url, Err: malformed(raw)}
	}
	text, err := decodeReply(provider, obj)
	if errors.Is(err, errNoResult) {
		return "", &TransportError{Op: op, URL: url, Err: err}
	}
	return text, err
}

// decomposeMultiplexed splits a combined payload into per-provider replies.
// Keys are lowercased to match provider names.
func decomposeMultiplexed(op, url string, status int, raw []byte) (map[string]Reply, error) {
	obj, ok := parseObject(raw)
	if status/100 != 2 {
		if ok {
			if e := obj.Get("error"); truthy(e) {
				return nil, &ProviderError{StatusCode: status, Message: errorText(e)}
			}
		}
		return nil, &TransportError{Op: op, URL: url, StatusCode: status, Err: statusDetail(raw)}
	}
	if !ok {
		return nil, &TransportError{Op: op, URL: url, Err: malformed(raw)}
	}
	if e := obj.Get("error"); truthy(e) && e.Type == gjson.String {
		return nil, &ProviderError{Message: e.Str}
	}
	out := make(map[string]Reply)
	for key, entry := range obj.Map() {
		name := strings.ToLower(strings.TrimSpace(key))
		if name == "" || name == "error" {
			continue
		}
		if !entry.IsObject() {
			out[name] = Reply{Err: &TransportError{Op: op, URL: url, Err: fmt.Errorf("entry for %s is not an object", name)}}
			continue
		}
		text, err := decodeReply(name, entry)
		if errors.Is(err, errNoResult) {
			err = &TransportError{Op: op, URL: url, Err: fmt.Errorf("entry for %s has neither result nor error", name)}
		}
		out[name] = Reply{Text: text, Err: err}
	}
	return out, nil
}

func statusDetail(raw []byte) error {
	body := strings.TrimSpace(string(raw))
	if body == "" {
		return nil
	}
	return errors.New(textutil.Truncate(body, 200))
}

func malformed(raw []byte) error {
	body := strings.TrimSpace(string(raw))
	if body == "" {
		return errors.New("empty response body")
	}
	return fmt.Errorf("malformed JSON response: %s", textutil.Truncate(body, 120))
}
