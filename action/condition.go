package action

import (
	"strconv"
	"strings"

	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/util"
	"go.uber.org/zap"
)

// Evaluate applies a condition node to the current variables. A missing
// variable compares as the empty string; greater and less are false unless
// both operands are numbers.
func Evaluate(cfg model.NodeConfig, vars map[string]any) bool {
	var left string
	if v, ok := util.Lookup(vars, cfg.Variable); ok {
		left = util.Stringify(v)
	}
	right := util.Render(cfg.Value, vars)
	switch cfg.Operator {
	case model.OP_EQUALS:
		return left == right
	case model.OP_NOT_EQUALS:
		return left != right
	case model.OP_CONTAINS:
		return strings.Contains(left, right)
	case model.OP_NOT_CONTAINS:
		return !strings.Contains(left, right)
	case model.OP_GREATER, model.OP_LESS:
		l, lerr := strconv.ParseFloat(strings.TrimSpace(left), 64)
		r, rerr := strconv.ParseFloat(strings.TrimSpace(right), 64)
		if lerr != nil || rerr != nil {
			return false
		}
		if cfg.Operator == model.OP_GREATER {
			return l > r
		}
		return l < r
	}
	logger.Warn("unknown condition operator", zap.String("operator", string(cfg.Operator)))
	return false
}

// Handle returns the edge handle selected by the condition outcome.
func Handle(result bool) string {
	if result {
		return model.HANDLE_YES
	}
	return model.HANDLE_NO
}
