package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// actionTimeout is the per-action deadline.
const actionTimeout = 5 * time.Second

// playPollInterval is how often clickPlayer checks the players.
const playPollInterval = 500 * time.Millisecond

// playingJS reports whether any player on the page is playing: a video.js
// container with vjs-playing, or a media element that is advancing.
const playingJS = `() => {
	if (document.querySelector('.video-js.vjs-playing, .vjs-playing')) return true;
	for (const m of document.querySelectorAll('video, audio')) {
		if (!m.paused && !m.ended && m.readyState > 2) return true;
	}
	return false;
}`

// playAction is one way of starting a player.
type playAction struct {
	name string
	run  func(ctx context.Context) error
}

// playerActions lists the ways to start playback on page, most specific
// first: many players request no media until they are clicked.
func playerActions(page *rod.Page) []playAction {
	return []playAction{
		{"big-play-button", func(ctx context.Context) error {
			el, err := page.Context(ctx).Element("button.vjs-big-play-button")
			if err != nil {
				return err
			}
			return el.Click(proto.InputMouseButtonLeft, 1)
		}},
		{"play-video-label", func(ctx context.Context) error {
			span, err := page.Context(ctx).ElementR("span", "Play Video")
			if err != nil {
				return err
			}
			btn, err := span.Parent()
			if err != nil {
				return err
			}
			return btn.Click(proto.InputMouseButtonLeft, 1)
		}},
		{"page-centre", func(ctx context.Context) error {
			p := page.Context(ctx)
			res, err := p.Eval(`() => [window.innerWidth, window.innerHeight]`)
			if err != nil {
				return err
			}
			size := res.Value.Arr()
			if len(size) != 2 {
				return fmt.Errorf("unexpected viewport %v", res.Value)
			}
			centre := proto.Point{X: size[0].Num() / 2, Y: size[1].Num() / 2}
			if err := p.Mouse.MoveTo(centre); err != nil {
				return err
			}
			return p.Mouse.Click(proto.InputMouseButtonLeft, 1)
		}},
	}
}

// startPlayback runs actions in order until one succeeds, each under its
// own timeout. Failures are logged and skipped. It returns the name of the
// action that worked, or "".
func startPlayback(ctx context.Context, actions []playAction) string {
	for _, a := range actions {
		actx, cancel := context.WithTimeout(ctx, actionTimeout)
		err := a.run(actx)
		cancel()
		if err == nil {
			return a.name
		}
		slog.Debug("player action failed", "action", a.name, "error", err)
		if ctx.Err() != nil {
			return ""
		}
	}
	return ""
}

// pollUntil calls check every interval until it returns true, limit passes
// or ctx is done. It reports whether check succeeded.
func pollUntil(ctx context.Context, interval, limit time.Duration, check func() bool) bool {
	if limit <= 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if check() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
		}
	}
}

// clickPlayer tries to start playback and waits up to playWait for a
// player to report it is playing.
func clickPlayer(ctx context.Context, page *rod.Page, playWait time.Duration) {
	action := startPlayback(ctx, playerActions(page))
	if action == "" {
		slog.Debug("no player could be started")
		return
	}
	p := page.Context(ctx)
	playing := pollUntil(ctx, playPollInterval, playWait, func() bool {
		res, err := p.Eval(playingJS)
		return err == nil && res.Value.Bool()
	})
	slog.Debug("player clicked", "action", action, "playing", playing)
}
