// Package rules applies a step's ordered business rules to a submission,
// producing an advance/veto decision and any notification side effects.
package rules

import (
	"log/slog"
	"sort"

	"github.com/flowdesk/flowdesk/pkg/expr"
	"github.com/flowdesk/flowdesk/pkg/models"
)

// Kind classifies the engine's decision for a submission.
type Kind string

const (
	// Proceed allows the instance to advance: no rule matched, or the matched
	// rule does not block (AUTO_APPROVE, NOTIFY_ADMIN, ESCALATE).
	Proceed Kind = "proceed"
	// Block halts the submission; the instance stays on its current step and
	// the reason is surfaced to the submitting user.
	Block Kind = "block"
	// Pending keeps the instance on its current step awaiting a privileged
	// resubmission (REQUIRE_APPROVAL).
	Pending Kind = "pending"
)

// Notification is a side-effect payload emitted by NOTIFY_ADMIN and ESCALATE
// rules. The engine only collects them; publishing is the caller's job.
type Notification struct {
	Rule    string            `json:"rule"`
	Action  models.RuleAction `json:"action"`
	Message string            `json:"message"`
}

// Outcome is the engine's decision after evaluating a step's rules.
type Outcome struct {
	Kind          Kind
	Rule          *models.BusinessRule // First matched rule, nil when none matched
	Reason        string               // Set for Block
	ApproverRole  string               // Set for Pending when the step names a role
	Notifications []Notification
}

// Engine evaluates business rules with first-match-wins semantics.
type Engine struct {
	logger *slog.Logger
}

func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{logger: logger}
}

// Apply processes ruleList in RuleOrder and decides the outcome for the first
// rule whose condition evaluates true against context. Rules whose condition
// fails to evaluate (unknown field, malformed expression) are treated as not
// matched and logged. approverRole is the step's advisory assigned role,
// carried into Pending outcomes.
func (e *Engine) Apply(ruleList []*models.BusinessRule, context map[string]string, approverRole string) Outcome {
	if len(ruleList) == 0 {
		return Outcome{Kind: Proceed}
	}

	ordered := make([]*models.BusinessRule, len(ruleList))
	copy(ordered, ruleList)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].RuleOrder < ordered[j].RuleOrder
	})

	for _, rule := range ordered {
		matched, err := expr.Evaluate(rule.Condition, context)
		if err != nil {
			e.logger.Warn("Business rule condition failed to evaluate, skipping rule",
				"rule", rule.Name,
				"condition", rule.Condition,
				"error", err,
			)

			continue
		}

		if !matched {
			continue
		}

		return e.outcomeFor(rule, approverRole)
	}

	return Outcome{Kind: Proceed}
}

func (e *Engine) outcomeFor(rule *models.BusinessRule, approverRole string) Outcome {
	switch rule.Action {
	case models.RuleActionReject:
		return Outcome{
			Kind:   Block,
			Rule:   rule,
			Reason: rejectReason(rule),
		}

	case models.RuleActionRequireApproval:
		return Outcome{
			Kind:         Pending,
			Rule:         rule,
			ApproverRole: approverRole,
		}

	case models.RuleActionNotifyAdmin, models.RuleActionEscalate:
		return Outcome{
			Kind: Proceed,
			Rule: rule,
			Notifications: []Notification{
				{
					Rule:    rule.Name,
					Action:  rule.Action,
					Message: notificationMessage(rule),
				},
			},
		}

	case models.RuleActionAutoApprove:
		return Outcome{Kind: Proceed, Rule: rule}

	default:
		e.logger.Warn("Unknown rule action, treating as proceed", "rule", rule.Name, "action", rule.Action)

		return Outcome{Kind: Proceed, Rule: rule}
	}
}

func rejectReason(rule *models.BusinessRule) string {
	reason := "Submission rejected by rule: " + rule.Name
	if rule.Description != "" {
		reason += ". " + rule.Description
	}

	return reason
}

func notificationMessage(rule *models.BusinessRule) string {
	message := "Rule " + rule.Name + " triggered " + string(rule.Action)
	if rule.Description != "" {
		message += ": " + rule.Description
	}

	return message
}
