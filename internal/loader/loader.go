// Package loader reads an application definition: the callback
// declarations and the initial layout.
//
// Definitions may be written in CUE, YAML or JSON. Every format is
// normalized through JSON, so the same definition yields the same App
// whatever it was written in.
package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/reflow/internal/graph"
)

// App is a loaded application definition.
type App struct {
	Callbacks []graph.Declaration `json:"callbacks"`
	// Layout is the initial component tree as decoded JSON.
	Layout any `json:"layout"`
}

// Error codes of LoadError.
const (
	ErrCodeGeneric     = "E001"
	ErrCodeNotFound    = "E005"
	ErrCodeLoadFailed  = "E004"
	ErrCodeBuildFailed = "E006"
	ErrCodeDecode      = "E008"
	ErrCodeFormat      = "E009"
)

// LoadError is a definition that could not be read.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load reads the definition at path. The format follows the extension:
// .cue, .yaml/.yml or .json. A directory is loaded as one CUE package.
func Load(path string) (*App, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("app definition not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing %s: %v", path, err)}
	}
	if info.IsDir() {
		return loadCUE(path, ".")
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".cue":
		return loadCUE(filepath.Dir(path), "./"+filepath.Base(path))
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
		}
		return DecodeYAML(data)
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
		}
		return DecodeJSON(data)
	default:
		return nil, &LoadError{Code: ErrCodeFormat, Message: fmt.Sprintf("unsupported app definition format %q", ext)}
	}
}

func loadCUE(dir, arg string) (*App, error) {
	instances := load.Instances([]string{arg}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, cueError(ErrCodeLoadFailed, inst.Err)
	}

	value := cuecontext.New().BuildInstance(inst)
	return DecodeCUE(value)
}

// DecodeCUE converts a built CUE value. It must be concrete.
func DecodeCUE(value cue.Value) (*App, error) {
	if err := value.Err(); err != nil {
		return nil, cueError(ErrCodeBuildFailed, err)
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError(ErrCodeBuildFailed, err)
	}
	data, err := value.MarshalJSON()
	if err != nil {
		return nil, cueError(ErrCodeBuildFailed, err)
	}
	return DecodeJSON(data)
}

// DecodeYAML parses a YAML definition.
func DecodeYAML(data []byte) (*App, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &LoadError{Code: ErrCodeDecode, Message: fmt.Sprintf("parse YAML: %v", err)}
	}
	normalized, err := jsonCompatible(raw)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeDecode, Message: err.Error()}
	}
	js, err := json.Marshal(normalized)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeDecode, Message: fmt.Sprintf("convert YAML: %v", err)}
	}
	return DecodeJSON(js)
}

// DecodeJSON parses a JSON definition.
func DecodeJSON(data []byte) (*App, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var app App
	if err := dec.Decode(&app); err != nil {
		return nil, &LoadError{Code: ErrCodeDecode, Message: fmt.Sprintf("decode app definition: %v", err)}
	}
	if app.Layout == nil {
		return nil, &LoadError{Code: ErrCodeDecode, Message: "app definition has no layout"}
	}
	return &app, nil
}

// jsonCompatible rewrites YAML maps with non-string keys, which
// encoding/json rejects.
func jsonCompatible(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		for k, e := range val {
			c, err := jsonCompatible(e)
			if err != nil {
				return nil, err
			}
			val[k] = c
		}
		return val, nil
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("YAML key %v is not a string", k)
			}
			c, err := jsonCompatible(e)
			if err != nil {
				return nil, err
			}
			out[ks] = c
		}
		return out, nil
	case []any:
		for i, e := range val {
			c, err := jsonCompatible(e)
			if err != nil {
				return nil, err
			}
			val[i] = c
		}
		return val, nil
	default:
		return v, nil
	}
}

// cueError keeps the position of the first CUE error.
func cueError(code string, err error) *LoadError {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{Code: code, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
