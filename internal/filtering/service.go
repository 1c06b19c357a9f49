package filtering

import (
	"context"
	"fmt"
	"strings"
	"time"

	"certpipe/internal/config"
	"certpipe/internal/constants"
	"certpipe/internal/logger"
	"certpipe/pkg/cel"
	"certpipe/pkg/metrics"
	"certpipe/pkg/models"
)

type errorHandlingStatus int

const (
	errorHandlingDeny errorHandlingStatus = iota
	errorHandlingSkip
)

// Service decides which messages enter the extraction pipeline. A fixed
// gate runs first (group chat, text, inbound, monitored group), then the
// configured CEL rules; every rule must pass.
type Service struct {
	monitored map[string]struct{}
	rules     []Rule
	fallback  string
	evaluator *cel.Evaluator
	logger    logger.Logger
}

func NewService(cfg config.FilteringConfig, log logger.Logger) (*Service, error) {
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL evaluator: %w", err)
	}

	rules := make([]Rule, 0, len(cfg.Rules))
	for _, rc := range cfg.Rules {
		program, err := evaluator.CompileFilter(rc.Expression)
		if err != nil {
			return nil, fmt.Errorf("failed to compile rule %q: %w", rc.Name, err)
		}
		rules = append(rules, Rule{
			Name:       rc.Name,
			Expression: rc.Expression,
			program:    program,
		})
	}

	var monitored map[string]struct{}
	if len(cfg.MonitoredGroups) > 0 {
		monitored = make(map[string]struct{}, len(cfg.MonitoredGroups))
		for _, g := range cfg.MonitoredGroups {
			monitored[g] = struct{}{}
		}
	}

	metrics.SetFilteringActiveRules(len(rules))

	return &Service{
		monitored: monitored,
		rules:     rules,
		fallback:  cfg.Fallback.OnError,
		evaluator: evaluator,
		logger:    log,
	}, nil
}

func (s *Service) Filter(ctx context.Context, msg models.ChatMessage) Verdict {
	start := time.Now()

	verdict := s.filter(ctx, msg)

	s.recordMetrics(time.Since(start), verdict)
	return verdict
}

func (s *Service) filter(ctx context.Context, msg models.ChatMessage) Verdict {
	if reason := s.gate(msg); reason != "" {
		return Verdict{Reason: reason}
	}

	applied := make([]string, 0, len(s.rules))
	for _, rule := range s.rules {
		if err := ctx.Err(); err != nil {
			return Verdict{Reason: ReasonFallbackDeny}
		}

		result, err := s.evaluator.EvaluateProgram(ctx, rule.program, msg)
		if err != nil {
			if s.handleEvaluationError(ctx, rule, err) == errorHandlingDeny {
				return Verdict{Reason: ReasonFallbackDeny, RulesApplied: applied}
			}
			continue
		}

		metrics.IncFilteringRuleEvaluation(rule.Name, resultLabel(result))
		if !result {
			s.logger.DebugwCtx(ctx, "Rule filtered message",
				"rule_name", rule.Name,
			)
			return Verdict{Reason: ReasonRuleRejected, RulesApplied: applied}
		}

		applied = append(applied, rule.Name)
	}

	return Verdict{Accepted: true, RulesApplied: applied}
}

// gate applies the fixed acceptance conditions that do not depend on
// configured rules. Returns the rejection reason, or "" to continue.
func (s *Service) gate(msg models.ChatMessage) string {
	if msg.SourceKind != models.SourceGroupChat {
		return ReasonNotGroup
	}
	if msg.ContentKind != models.ContentText {
		return ReasonNotText
	}
	if msg.IsOutgoing {
		return ReasonOutgoing
	}
	if strings.TrimSpace(msg.RawContent) == "" {
		return ReasonEmptyContent
	}
	if s.monitored != nil {
		if _, ok := s.monitored[msg.SourceID]; !ok {
			return ReasonUnmonitoredGroup
		}
	}
	return ""
}

func (s *Service) handleEvaluationError(ctx context.Context, rule Rule, err error) errorHandlingStatus {
	s.logger.ErrorwCtx(ctx, "Rule evaluation error",
		"rule_name", rule.Name,
		"error", err,
	)

	switch s.fallback {
	case constants.FallbackAllow:
		metrics.FallbackUsageTotal.WithLabelValues("filtering", "allow_on_error", "evaluation_error").Inc()
		return errorHandlingSkip
	case constants.FallbackDeny:
		metrics.FallbackUsageTotal.WithLabelValues("filtering", "deny_on_error", "evaluation_error").Inc()
		return errorHandlingDeny
	default:
		return errorHandlingSkip
	}
}

func (s *Service) recordMetrics(duration time.Duration, verdict Verdict) {
	status := "passed"
	if !verdict.Accepted {
		status = "filtered"
	}
	metrics.FilteringMessagesTotal.WithLabelValues(status).Inc()
	metrics.ObserveFilteringDuration(duration, status)
}

func resultLabel(passed bool) string {
	if passed {
		return "passed"
	}
	return "rejected"
}
