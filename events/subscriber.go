package events

import (
	"context"

	"github.com/joeycumines/go-longpoll"
)

// PollConfig configures one long-poll batch read; see
// github.com/joeycumines/go-longpoll.ChannelConfig for field semantics. A
// nil PollConfig uses that package's defaults (min 4, max 16, 50ms partial
// timeout).
type PollConfig = longpoll.ChannelConfig

// Poll performs one blocking batch receive from a subscriber channel
// returned by Subscribe{Submission,Global,Contest}, returning once
// between cfg.MinSize and cfg.MaxSize events have arrived, cfg.PartialTimeout
// has elapsed with at least one event, or ctx is done. This is the
// consumption side of the platform's HTTP long-poll event endpoints.
func Poll(ctx context.Context, ch <-chan Event, cfg *PollConfig) ([]Event, error) {
	var batch []Event
	err := longpoll.Channel(ctx, cfg, ch, func(ev Event) error {
		batch = append(batch, ev)
		return nil
	})
	return batch, err
}
