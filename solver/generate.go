package solver

import (
	"context"

	"github.com/evalforge/evalforge/model"
	"github.com/evalforge/evalforge/modelgateway"
	"github.com/evalforge/evalforge/tooldispatch"
	"github.com/evalforge/evalforge/transcript"
)

// Generate builds the distinguished "generate" Solver that drives the
// model/tool loop exactly as spec §4.2 pseudocode describes: check limits
// before calling the gateway, append the assistant message, stop on
// model_length or no tool calls, otherwise dispatch tool calls and loop,
// checking limits again after each mutation of st.Messages.
func Generate(gw *modelgateway.Gateway, dispatch *tooldispatch.Dispatcher, rec *transcript.Recorder, sampleKey string, cfg model.Config) Solver {
	return func(ctx context.Context, st *State) error {
		for !st.Completed {
			// Spec §4.3 requires the message limit to be checked "before
			// each generate call", not just after messages are appended;
			// this also catches a sample whose initial input alone already
			// breaches the limit, before any model call is made.
			if err := st.Limits.Exceeded(); err != nil {
				return err
			}

			req := modelgateway.Request{
				Messages:   st.Messages,
				Tools:      st.Tools,
				ToolChoice: st.ToolChoice,
				Config:     cfg,
			}
			out, err := gw.Generate(ctx, req, st.Limits)
			if err != nil {
				return err
			}
			st.Output = out

			if len(out.Choices) == 0 {
				st.Completed = true
				return nil
			}
			choice := out.Choices[0]
			st.Messages = append(st.Messages, choice.Message)
			if err := recordModelEvent(ctx, rec, sampleKey, out, choice); err != nil {
				return err
			}
			if err := st.Limits.AddMessages(1); err != nil {
				return err
			}
			if err := st.Limits.AddTokens(out.Usage.TotalTokens); err != nil {
				return err
			}

			if choice.StopReason == model.StopReasonModelLength {
				st.Completed = true
				return nil
			}
			if choice.StopReason == model.StopReasonStop || choice.StopReason == model.StopReasonContentFilter {
				st.Completed = true
				return nil
			}
			if len(choice.Message.ToolCalls) == 0 {
				st.Completed = true
				return nil
			}
			if st.ToolChoice != nil && st.ToolChoice.Mode == model.ToolChoiceModeNone {
				st.Completed = true
				return nil
			}

			results := dispatch.Dispatch(ctx, choice.Message.ToolCalls, st.Store)
			st.Messages = append(st.Messages, results...)
			if err := st.Limits.AddMessages(len(results)); err != nil {
				return err
			}

			if err := st.Limits.Exceeded(); err != nil {
				return err
			}
		}
		return nil
	}
}

func recordModelEvent(ctx context.Context, rec *transcript.Recorder, sampleKey string, out *model.Output, choice model.Choice) error {
	if rec == nil {
		return nil
	}
	return rec.Append(ctx, transcript.Event{
		Kind: transcript.KindModel,
		Model: &transcript.ModelEvent{
			Model:      out.Model,
			StopReason: string(choice.StopReason),
			Usage: transcript.ModelUsage{
				InputTokens:  out.Usage.InputTokens,
				OutputTokens: out.Usage.OutputTokens,
				TotalTokens:  out.Usage.TotalTokens,
			},
			CacheHit: out.CacheHit,
		},
	})
}
