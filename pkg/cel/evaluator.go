package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"certpipe/pkg/models"
)

// Evaluator compiles and runs filter expressions over chat messages.
// Expressions see the message as a flat set of variables.
type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("message_id", cel.StringType),
		cel.Variable("source_kind", cel.StringType),
		cel.Variable("source_id", cel.StringType),
		cel.Variable("sender_id", cel.StringType),
		cel.Variable("content_kind", cel.StringType),
		cel.Variable("raw_content", cel.StringType),
		cel.Variable("is_outgoing", cel.BoolType),
		cel.Variable("member_count", cel.IntType),
		cel.Variable("mentioned_ids", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateFilterExpression(expression string) error {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	return nil
}

// CompileFilter compiles a boolean expression once so rule evaluation
// does not pay compile cost per message.
func (e *Evaluator) CompileFilter(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return program, nil
}

func (e *Evaluator) EvaluateProgram(ctx context.Context, program cel.Program, msg models.ChatMessage) (bool, error) {
	result, _, err := program.ContextEval(ctx, messageVars(msg))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}

func (e *Evaluator) EvaluateFilter(ctx context.Context, expression string, msg models.ChatMessage) (bool, error) {
	program, err := e.CompileFilter(expression)
	if err != nil {
		return false, err
	}
	return e.EvaluateProgram(ctx, program, msg)
}

func messageVars(msg models.ChatMessage) map[string]interface{} {
	mentioned := msg.MentionedIDs
	if mentioned == nil {
		mentioned = []string{}
	}
	return map[string]interface{}{
		"message_id":    msg.MessageID,
		"source_kind":   msg.SourceKind.String(),
		"source_id":     msg.SourceID,
		"sender_id":     msg.SenderID,
		"content_kind":  msg.ContentKind.String(),
		"raw_content":   msg.RawContent,
		"is_outgoing":   msg.IsOutgoing,
		"member_count":  msg.MemberCount,
		"mentioned_ids": mentioned,
	}
}
