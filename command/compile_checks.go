package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-hookdelivery/core"
)

var (
	_ gocmd.Commander[EnqueueMessage]           = (*EnqueueCommand)(nil)
	_ gocmd.Commander[EnqueueForWebhookMessage] = (*EnqueueForWebhookCommand)(nil)
	_ gocmd.Commander[EnqueueEventMessage]      = (*EnqueueEventCommand)(nil)
	_ gocmd.Commander[DeliverMessage]           = (*DeliverCommand)(nil)
	_ gocmd.Commander[AttemptMessage]           = (*AttemptCommand)(nil)
	_ gocmd.Commander[DispatchDueMessage]       = (*DispatchDueCommand)(nil)
	_ gocmd.Commander[ResetMessage]             = (*ResetCommand)(nil)
	_ gocmd.Commander[AbandonMessage]           = (*AbandonCommand)(nil)
	_ gocmd.Commander[RegisterWebhookMessage]   = (*RegisterWebhookCommand)(nil)
	_ gocmd.Commander[RemoveWebhookMessage]     = (*RemoveWebhookCommand)(nil)
	_ MutatingService                           = (*core.Coordinator)(nil)
)
