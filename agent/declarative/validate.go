package declarative

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func specValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report fields by their document key rather than the Go name.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// checkSpec validates one entry's field-level rules and returns one error per
// violated field.
func checkSpec(kind, id string, spec any) []error {
	if strings.TrimSpace(id) == "" {
		return []error{fmt.Errorf("%s: identifier must not be empty", kind)}
	}
	err := specValidator().Struct(spec)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []error{fmt.Errorf("%s %q: %w", kind, id, err)}
	}
	out := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, fmt.Errorf("%s %q: field %s %s", kind, id, fieldPath(fe), describeTag(fe)))
	}
	return out
}

// fieldPath strips the struct name prefix from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "needs at least " + fe.Param() + " entries"
	case "gte":
		return "must be >= " + fe.Param()
	case "oneof":
		return "must be one of [" + fe.Param() + "]"
	default:
		return "failed " + fe.Tag()
	}
}

// checkReferences verifies cross-kind references of a complete set.
func checkReferences(agents map[string]AgentDef, tasks map[string]TaskDef, crews map[string]CrewDef) []error {
	var errs []error
	for _, id := range sortedKeys(tasks) {
		t := tasks[id]
		if _, ok := agents[t.Agent]; !ok {
			errs = append(errs, fmt.Errorf("task %q: agent %q is not defined", id, t.Agent))
		}
	}
	for _, id := range sortedKeys(crews) {
		c := crews[id]
		seen := make(map[string]bool, len(c.Agents))
		for _, a := range c.Agents {
			if _, ok := agents[a]; !ok {
				errs = append(errs, fmt.Errorf("crew %q: agent %q is not defined", id, a))
			}
			if seen[a] {
				errs = append(errs, fmt.Errorf("crew %q: agent %q listed twice", id, a))
			}
			seen[a] = true
		}
		listed := make(map[string]bool, len(c.Tasks))
		for _, tid := range c.Tasks {
			if listed[tid] {
				errs = append(errs, fmt.Errorf("crew %q: task %q listed twice", id, tid))
				continue
			}
			listed[tid] = true
			t, ok := tasks[tid]
			if !ok {
				errs = append(errs, fmt.Errorf("crew %q: task %q is not defined", id, tid))
				continue
			}
			if _, ok := agents[t.Agent]; ok && !c.HasAgent(t.Agent) {
				errs = append(errs, fmt.Errorf("crew %q: task %q is assigned to agent %q which is not a crew member", id, tid, t.Agent))
			}
		}
	}
	return errs
}
