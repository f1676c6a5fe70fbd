package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/flowdesk/flowdesk/pkg/eventbus"
	"github.com/flowdesk/flowdesk/pkg/events"
)

// Notifier consumes submission decision events and delivers them to
// operators. Delivery is a structured log line; the events themselves already
// carry everything a mail or chat integration would need.
type Notifier struct {
	id       string
	eventBus eventbus.EventBus
	logger   *slog.Logger
}

// NewNotifier creates a new Notifier instance.
func NewNotifier(id string, eventBus eventbus.EventBus, logger *slog.Logger) *Notifier {
	return &Notifier{
		id:       id,
		eventBus: eventBus,
		logger:   logger.With("module", "notifier", "notifier_id", id),
	}
}

// Start registers event handlers and blocks until the context is cancelled or
// a termination signal arrives.
func (n *Notifier) Start(ctx context.Context) error {
	nCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	n.logger.Info("Starting notifier")

	if err := n.registerHandlers(); err != nil {
		return fmt.Errorf("failed to register event handlers: %w", err)
	}

	if err := n.eventBus.Subscribe(nCtx); err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	n.handleSignals(cancel)

	<-nCtx.Done()
	n.logger.Info("Notifier context cancelled, stopping...")

	return nil
}

func (n *Notifier) handleSignals(cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		n.logger.Info("Received signal", "signal", sig)
		cancel()
	}()
}

func (n *Notifier) registerHandlers() error {
	if err := n.eventBus.Handle(events.RuleNotificationEvent, n.handleRuleNotification); err != nil {
		return err
	}

	if err := n.eventBus.Handle(events.ApprovalRequestedEvent, n.handleApprovalRequested); err != nil {
		return err
	}

	return n.eventBus.Handle(events.SubmissionRejectedEvent, n.handleSubmissionRejected)
}

func (n *Notifier) handleRuleNotification(ctx context.Context, raw any) error {
	event, ok := raw.(*events.RuleNotification)
	if !ok {
		return fmt.Errorf("unexpected payload for %s: %T", events.RuleNotificationEvent, raw)
	}

	n.logger.InfoContext(ctx, "Rule notification",
		"workflow_id", event.WorkflowID,
		"instance_id", event.InstanceID,
		"step_id", event.StepID,
		"rule", event.Rule,
		"action", event.Action,
		"message", event.Message)

	return nil
}

func (n *Notifier) handleApprovalRequested(ctx context.Context, raw any) error {
	event, ok := raw.(*events.ApprovalRequested)
	if !ok {
		return fmt.Errorf("unexpected payload for %s: %T", events.ApprovalRequestedEvent, raw)
	}

	n.logger.InfoContext(ctx, "Approval requested",
		"workflow_id", event.WorkflowID,
		"instance_id", event.InstanceID,
		"step_id", event.StepID,
		"rule", event.Rule,
		"approver_role", event.ApproverRole)

	return nil
}

func (n *Notifier) handleSubmissionRejected(ctx context.Context, raw any) error {
	event, ok := raw.(*events.SubmissionRejected)
	if !ok {
		return fmt.Errorf("unexpected payload for %s: %T", events.SubmissionRejectedEvent, raw)
	}

	n.logger.InfoContext(ctx, "Submission rejected",
		"workflow_id", event.WorkflowID,
		"instance_id", event.InstanceID,
		"step_id", event.StepID,
		"rule", event.Rule,
		"reason", event.Reason)

	return nil
}
