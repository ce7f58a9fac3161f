package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/gh-nvat/ci-guard/src/pkg/models"
	"github.com/open-policy-agent/opa/rego"
)

const RULES_QUERY = "data.audit.deny"

// RuleEvaluator runs the optional Rego module declared by audit.rules.
// Every string in data.audit.deny becomes a rule violation.
type RuleEvaluator struct {
	path  string
	query rego.PreparedEvalQuery
}

// NewRuleEvaluator compiles the module at path
func NewRuleEvaluator(ctx context.Context, path string) (*RuleEvaluator, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules %s: %w", path, err)
	}
	return NewRuleEvaluatorFromSource(ctx, path, string(src))
}

// NewRuleEvaluatorFromSource compiles an in-memory module, name is used in compile errors
func NewRuleEvaluatorFromSource(ctx context.Context, name, src string) (*RuleEvaluator, error) {
	query, err := rego.New(
		rego.Query(RULES_QUERY),
		rego.Module(name, src),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile rules %s: %w", name, err)
	}
	return &RuleEvaluator{path: name, query: query}, nil
}

// Evaluate returns the sorted deny messages for the report
func (e *RuleEvaluator) Evaluate(ctx context.Context, report *models.ClassifiedReport) ([]string, error) {
	input, err := toInput(report)
	if err != nil {
		return nil, err
	}

	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate rules %s: %w", e.path, err)
	}
	logger.WithField("rules", e.path).WithField("results", len(rs)).Debug("Evaluated rules")

	var msgs []string
	for _, result := range rs {
		for _, expr := range result.Expressions {
			values, ok := expr.Value.([]interface{})
			if !ok {
				return nil, fmt.Errorf("rules %s: %s must be a set of strings, got %T", e.path, RULES_QUERY, expr.Value)
			}
			for _, v := range values {
				msgs = append(msgs, fmt.Sprint(v))
			}
		}
	}
	sort.Strings(msgs)
	return msgs, nil
}

// toInput converts the report into plain JSON values so the json tags become the rego field names
func toInput(report *models.ClassifiedReport) (map[string]interface{}, error) {
	r := *report
	if r.Failing == nil {
		r.Failing = []models.Advisory{}
	}
	if r.Waived == nil {
		r.Waived = []models.WaivedAdvisory{}
	}
	if r.BelowThreshold == nil {
		r.BelowThreshold = []models.Advisory{}
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var input map[string]interface{}
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, err
	}
	return input, nil
}
