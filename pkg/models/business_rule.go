package models

// RuleAction is the effect applied when a rule's condition matches.
type RuleAction string

const (
	RuleActionRequireApproval RuleAction = "REQUIRE_APPROVAL"
	RuleActionNotifyAdmin     RuleAction = "NOTIFY_ADMIN"
	RuleActionAutoApprove     RuleAction = "AUTO_APPROVE"
	RuleActionReject          RuleAction = "REJECT"
	RuleActionEscalate        RuleAction = "ESCALATE"
)

// BusinessRule is a condition/action pair evaluated against submitted form
// data. Rules are evaluated in RuleOrder; the first rule whose condition holds
// wins. An empty condition always matches.
type BusinessRule struct {
	Name        string     `json:"name"                  validate:"required"`
	Description string     `json:"description,omitempty"`
	Condition   string     `json:"condition_expression"`
	Action      RuleAction `json:"action_type"           validate:"required"`
	RuleOrder   int        `json:"rule_order"`
}
