package handler

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/flowruntime/engine/workflow"
	"github.com/flowruntime/engine/workflow/breaker"
	"github.com/flowruntime/engine/workflow/sandbox"
)

// Dependencies collects the external collaborators the built-in handlers
// need. Every field may be nil; a handler missing its collaborator fails
// with CONFIG per node instead of panicking, so a partial deployment
// still runs the block types it has wired.
type Dependencies struct {
	HTTPClient     *http.Client
	Mailer         Mailer
	DB             *sql.DB
	Model          ChatModel
	PriceFeed      PriceFeed
	ChainReader    ChainReader
	ChainWriter    ChainWriter
	Breaker        *breaker.Breaker
	SandboxTimeout time.Duration
	Now            func() time.Time
}

// NewDefaultRegistry builds a Registry with every recognized block type
// registered, each wrapped by the metrics decorator. metrics may be nil,
// in which case handlers run undecorated (tests).
func NewDefaultRegistry(deps Dependencies, metrics *Metrics) *Registry {
	r := NewRegistry()
	sb := sandbox.New(deps.SandboxTimeout)

	register := func(bt workflow.BlockType, h Handler) {
		if metrics != nil {
			h = metrics.Decorate(bt, h)
		}
		r.Register(bt, h)
	}

	register(workflow.BlockHTTP, NewHTTPHandler(deps.HTTPClient))
	register(workflow.BlockEmail, NewEmailHandler(deps.Mailer))
	register(workflow.BlockDatabase, NewDatabaseHandler(deps.DB))
	register(workflow.BlockWebhook, NewWebhookHandler(deps.HTTPClient))
	register(workflow.BlockNotification, NewNotificationHandler(deps.Mailer))
	register(workflow.BlockDiscord, NewDiscordHandler(deps.HTTPClient))
	register(workflow.BlockSchedule, NewScheduleHandler(deps.Now))
	register(workflow.BlockDelay, NewDelayHandler())
	register(workflow.BlockCondition, NewConditionHandler())
	register(workflow.BlockTransform, NewTransformHandler())
	register(workflow.BlockLLMPrompt, NewLLMPromptHandler(deps.Model))
	register(workflow.BlockPriceMonitor, NewPriceMonitorHandler(deps.PriceFeed))
	register(workflow.BlockBlockchainRead, NewBlockchainReadHandler(deps.ChainReader, deps.Breaker))
	register(workflow.BlockBlockchainTransaction, NewBlockchainTransactionHandler(deps.ChainWriter, deps.Breaker))
	register(workflow.BlockCalculator, NewCalculatorHandler())
	register(workflow.BlockCustom, NewCustomHandler(sb))

	return r
}
