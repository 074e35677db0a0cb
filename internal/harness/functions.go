package harness

import (
	"errors"
	"fmt"

	"github.com/roach88/reflow/internal/executor"
)

// Namespace is the clientside namespace of the built-in functions.
const Namespace = "harness"

// ErrFail is returned by the "fail" built-in.
var ErrFail = errors.New("callback failed")

// Builtins returns a registry of the functions scenario apps may name:
//
//   - identity: the first argument
//   - double: twice the first argument
//   - sum: the sum of all arguments, lists included
//   - label: "value <first argument>"
//   - echo: one value per output, each the first argument
//   - prevent: prevents the update
//   - noupdate: leaves the output unchanged
//   - fail: fails with ErrFail
func Builtins() *executor.Registry {
	r := executor.NewRegistry()
	r.Register(Namespace, "identity", func(_ *executor.CallbackContext, args ...any) (any, error) {
		return first(args), nil
	})
	r.Register(Namespace, "double", func(_ *executor.CallbackContext, args ...any) (any, error) {
		n, err := number(first(args))
		if err != nil {
			return nil, err
		}
		return n * 2, nil
	})
	r.Register(Namespace, "sum", func(_ *executor.CallbackContext, args ...any) (any, error) {
		return sum(args)
	})
	r.Register(Namespace, "label", func(_ *executor.CallbackContext, args ...any) (any, error) {
		return fmt.Sprintf("value %v", first(args)), nil
	})
	r.Register(Namespace, "echo", func(cc *executor.CallbackContext, args ...any) (any, error) {
		out := make([]any, len(cc.OutputsList))
		for i := range out {
			out[i] = first(args)
		}
		return out, nil
	})
	r.Register(Namespace, "prevent", func(_ *executor.CallbackContext, _ ...any) (any, error) {
		return nil, executor.ErrPreventUpdate
	})
	r.Register(Namespace, "noupdate", func(_ *executor.CallbackContext, _ ...any) (any, error) {
		return executor.NoUpdate, nil
	})
	r.Register(Namespace, "fail", func(_ *executor.CallbackContext, _ ...any) (any, error) {
		return nil, ErrFail
	})
	return r
}

func first(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

func number(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

func sum(args []any) (float64, error) {
	var total float64
	for _, arg := range args {
		if list, ok := arg.([]any); ok {
			n, err := sum(list)
			if err != nil {
				return 0, err
			}
			total += n
			continue
		}
		n, err := number(arg)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
