package releaseconfig

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

const jsonIndent = "  "

// rewriteJSON streams the top-level object token by token so member order is kept
func (r *Rewriter) rewriteJSON(doc string, branch string) (string, error) {
	dec := jsontext.NewDecoder(strings.NewReader(doc))
	var buf bytes.Buffer
	enc := jsontext.NewEncoder(&buf, jsontext.WithIndent(jsonIndent))

	tok, err := dec.ReadToken()
	if err != nil {
		return "", fmt.Errorf("invalid JSON release config: %w", err)
	}
	if tok.Kind() != '{' {
		return "", fmt.Errorf("release config must be a JSON object")
	}
	if err := enc.WriteToken(jsontext.BeginObject); err != nil {
		return "", err
	}

	foundBranches := false
	for dec.PeekKind() != '}' {
		nameTok, err := dec.ReadToken()
		if err != nil {
			return "", fmt.Errorf("invalid JSON release config: %w", err)
		}
		name := nameTok.String()

		switch name {
		case "branches":
			foundBranches = true
			if err := dec.SkipValue(); err != nil {
				return "", fmt.Errorf("invalid JSON release config: %w", err)
			}
			if err := writeBranches(enc, branch); err != nil {
				return "", err
			}
		case "plugins":
			value, err := dec.ReadValue()
			if err != nil {
				return "", fmt.Errorf("invalid JSON release config: %w", err)
			}
			filtered, err := r.filterJSONPlugins(value)
			if err != nil {
				return "", err
			}
			if err := writeMember(enc, name, filtered); err != nil {
				return "", err
			}
		default:
			value, err := dec.ReadValue()
			if err != nil {
				return "", fmt.Errorf("invalid JSON release config: %w", err)
			}
			if err := writeMember(enc, name, value); err != nil {
				return "", err
			}
		}
	}
	if _, err := dec.ReadToken(); err != nil {
		return "", fmt.Errorf("invalid JSON release config: %w", err)
	}

	if !foundBranches {
		if err := writeBranches(enc, branch); err != nil {
			return "", err
		}
	}
	if err := enc.WriteToken(jsontext.EndObject); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n") + "\n", nil
}

func (r *Rewriter) filterJSONPlugins(value jsontext.Value) (jsontext.Value, error) {
	if value.Kind() != '[' {
		return value, nil
	}

	dec := jsontext.NewDecoder(bytes.NewReader(value))
	var buf bytes.Buffer
	enc := jsontext.NewEncoder(&buf)

	if _, err := dec.ReadToken(); err != nil {
		return nil, fmt.Errorf("invalid plugins list: %w", err)
	}
	if err := enc.WriteToken(jsontext.BeginArray); err != nil {
		return nil, err
	}
	for dec.PeekKind() != ']' {
		item, err := dec.ReadValue()
		if err != nil {
			return nil, fmt.Errorf("invalid plugins list: %w", err)
		}
		if name := jsonPluginName(item); r.stripped[name] {
			logger.WithField("plugin", name).Debug("Stripping plugin")
			continue
		}
		if err := enc.WriteValue(item); err != nil {
			return nil, err
		}
	}
	if err := enc.WriteToken(jsontext.EndArray); err != nil {
		return nil, err
	}
	return jsontext.Value(bytes.TrimSpace(buf.Bytes())), nil
}

// jsonPluginName is the name of a "name" or ["name", {options}] entry
func jsonPluginName(item jsontext.Value) string {
	var v any
	if err := json.Unmarshal(item, &v); err != nil {
		return ""
	}
	switch p := v.(type) {
	case string:
		return p
	case []any:
		if len(p) > 0 {
			if name, ok := p[0].(string); ok {
				return name
			}
		}
	}
	return ""
}

func writeMember(enc *jsontext.Encoder, name string, value jsontext.Value) error {
	if err := enc.WriteToken(jsontext.String(name)); err != nil {
		return err
	}
	return enc.WriteValue(value)
}

func writeBranches(enc *jsontext.Encoder, branch string) error {
	for _, tok := range []jsontext.Token{
		jsontext.String("branches"),
		jsontext.BeginArray,
		jsontext.String(branch),
		jsontext.EndArray,
	} {
		if err := enc.WriteToken(tok); err != nil {
			return err
		}
	}
	return nil
}
