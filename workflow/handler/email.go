package handler

import (
	"context"

	"github.com/flowruntime/engine/workflow"
)

// Mailer delivers a rendered message. SMTP, queues, and provider APIs
// all live behind this interface; the engine only requires that a Mailer
// honor ctx's cancellation and surface error strings the retry
// classifier can pattern-match.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NullMailer accepts every message and delivers nothing. Default for
// deployments without a configured delivery channel.
type NullMailer struct{}

func (NullMailer) Send(context.Context, string, string, string) error { return nil }

// EmailHandler renders the EMAIL block's subject/body (already
// template-resolved by the Node Executor) and hands them to a Mailer.
type EmailHandler struct {
	mailer Mailer
}

// NewEmailHandler returns an EmailHandler backed by mailer, or NullMailer
// if nil.
func NewEmailHandler(mailer Mailer) *EmailHandler {
	if mailer == nil {
		mailer = NullMailer{}
	}
	return &EmailHandler{mailer: mailer}
}

func (h *EmailHandler) Schema() workflow.Schema {
	return workflow.Schema{
		Inputs: []workflow.Field{
			{Name: "to", Kind: workflow.KindString, Required: true},
			{Name: "subject", Kind: workflow.KindString, Required: true},
			{Name: "body", Kind: workflow.KindString},
		},
		Outputs: []workflow.Field{
			{Name: "sent", Kind: workflow.KindBoolean},
			{Name: "to", Kind: workflow.KindString},
			{Name: "subject", Kind: workflow.KindString},
		},
	}
}

func (h *EmailHandler) Execute(ctx context.Context, hctx Context, _ workflow.Node, input map[string]any) (map[string]any, error) {
	to, _ := input["to"].(string)
	subject, _ := input["subject"].(string)
	body, _ := input["body"].(string)

	if err := h.mailer.Send(ctx, to, subject, body); err != nil {
		return nil, workflow.Wrap(workflow.KindExecution, hctx.NodeID, err)
	}
	hctx.Logger(workflow.LevelInfo, "email sent", map[string]any{"to": to, "subject": subject})
	return map[string]any{"sent": true, "to": to, "subject": subject}, nil
}

// NotificationHandler dispatches a generic templated message through the
// same Mailer-shaped channel abstraction; the NOTIFICATION block differs
// from EMAIL only in that its channel and recipient semantics belong to
// the delivery layer, not the engine.
type NotificationHandler struct {
	mailer Mailer
}

// NewNotificationHandler returns a NotificationHandler backed by mailer,
// or NullMailer if nil.
func NewNotificationHandler(mailer Mailer) *NotificationHandler {
	if mailer == nil {
		mailer = NullMailer{}
	}
	return &NotificationHandler{mailer: mailer}
}

func (h *NotificationHandler) Schema() workflow.Schema {
	return workflow.Schema{
		Inputs: []workflow.Field{
			{Name: "recipient", Kind: workflow.KindString, Required: true},
			{Name: "title", Kind: workflow.KindString, Required: true},
			{Name: "message", Kind: workflow.KindString},
		},
		Outputs: []workflow.Field{
			{Name: "delivered", Kind: workflow.KindBoolean},
		},
	}
}

func (h *NotificationHandler) Execute(ctx context.Context, hctx Context, _ workflow.Node, input map[string]any) (map[string]any, error) {
	recipient, _ := input["recipient"].(string)
	title, _ := input["title"].(string)
	message, _ := input["message"].(string)

	if err := h.mailer.Send(ctx, recipient, title, message); err != nil {
		return nil, workflow.Wrap(workflow.KindExecution, hctx.NodeID, err)
	}
	return map[string]any{"delivered": true}, nil
}
