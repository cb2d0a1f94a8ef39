package hcl_adapter

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/fmriflow/internal/ctxlog"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// isExprDefined checks if an HCL expression was actually present in the source
// code. The HCL decoder populates omitted optional expression fields with
// zero-width placeholder expressions, so a nil check is insufficient.
func isExprDefined(ctx context.Context, expr hcl.Expression, attrName string) bool {
	logger := ctxlog.FromContext(ctx)

	if expr == nil {
		return false
	}

	// A real attribute occupies bytes in the file, while a placeholder for an
	// omitted optional attribute has a zero-width range.
	exprRange := expr.Range()
	isDefined := exprRange.End.Byte > exprRange.Start.Byte

	logger.Debug("Checking if HCL attribute was explicitly defined.",
		"attribute", attrName,
		"hcl_range", exprRange.String(),
		"is_defined", isDefined,
	)
	return isDefined
}

// decodeOptional evaluates expr into a new *T, or returns nil when the
// attribute was omitted.
func decodeOptional[T any](ctx context.Context, expr hcl.Expression, attrName string, evalCtx *hcl.EvalContext) (*T, error) {
	if !isExprDefined(ctx, expr, attrName) {
		return nil, nil
	}
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid value for '%s': %w", attrName, diags)
	}

	target := new(T)
	wantType, err := gocty.ImpliedType(target)
	if err != nil {
		return nil, fmt.Errorf("attribute '%s': %w", attrName, err)
	}
	val, err = convert.Convert(val, wantType)
	if err != nil {
		return nil, fmt.Errorf("attribute '%s': %w", attrName, err)
	}
	if err := gocty.FromCtyValue(val, target); err != nil {
		return nil, fmt.Errorf("attribute '%s': %w", attrName, err)
	}
	return target, nil
}
