package workflows

import (
	"go.temporal.io/sdk/workflow"
)

type signals struct {
	prompt  workflow.ReceiveChannel
	confirm workflow.ReceiveChannel
	endChat workflow.ReceiveChannel
}

func newSignals(ctx workflow.Context) *signals {
	return &signals{
		prompt:  workflow.GetSignalChannel(ctx, SignalUserPrompt),
		confirm: workflow.GetSignalChannel(ctx, SignalConfirm),
		endChat: workflow.GetSignalChannel(ctx, SignalEndChat),
	}
}

// listen applies signals to s from a workflow coroutine for the life of
// the run.
func (sig *signals) listen(ctx workflow.Context, s *sessionState) {
	workflow.Go(ctx, func(ctx workflow.Context) {
		for {
			selector := workflow.NewSelector(ctx)
			selector.AddReceive(sig.prompt, func(c workflow.ReceiveChannel, _ bool) {
				var prompt string
				c.Receive(ctx, &prompt)
				s.onPrompt(ctx, prompt)
			})
			selector.AddReceive(sig.confirm, func(c workflow.ReceiveChannel, _ bool) {
				c.Receive(ctx, nil)
				s.onConfirm(ctx)
			})
			selector.AddReceive(sig.endChat, func(c workflow.ReceiveChannel, _ bool) {
				c.Receive(ctx, nil)
				s.onEndChat(ctx)
			})
			selector.Select(ctx)
		}
	})
}

// drain applies every buffered signal without blocking.
func (sig *signals) drain(ctx workflow.Context, s *sessionState) {
	for {
		var prompt string
		if !sig.prompt.ReceiveAsync(&prompt) {
			break
		}
		s.onPrompt(ctx, prompt)
	}
	for sig.confirm.ReceiveAsync(nil) {
		s.onConfirm(ctx)
	}
	for sig.endChat.ReceiveAsync(nil) {
		s.onEndChat(ctx)
	}
}

func (s *sessionState) onPrompt(ctx workflow.Context, prompt string) {
	if s.chatEnded {
		workflow.GetLogger(ctx).Info("Message dropped due to chat closed")
		s.count(ctx, metricDroppedPrompts)
		return
	}
	s.queue = append(s.queue, prompt)
}

// onConfirm only arms execution while a proposal awaits confirmation. A
// stray confirm would otherwise leave the wake condition true forever.
func (s *sessionState) onConfirm(ctx workflow.Context) {
	if !s.waitingForConfirm {
		workflow.GetLogger(ctx).Info("Ignoring confirm, nothing awaits confirmation")
		return
	}
	s.confirmed = true
}

func (s *sessionState) onEndChat(ctx workflow.Context) {
	workflow.GetLogger(ctx).Info("Signal received: end_chat")
	s.chatEnded = true
}
