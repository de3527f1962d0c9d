package main

import (
	"io"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// progressBar renders a single bar; a nil progressBar is a no-op so commands
// can run quietly
type progressBar struct {
	p   *mpb.Progress
	bar *mpb.Bar
}

func newProgressBar(out io.Writer, name string, total int64, quiet bool) *progressBar {
	if quiet {
		return nil
	}

	p := mpb.New(mpb.WithWidth(64), mpb.WithOutput(out))
	bar := p.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(name),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.Elapsed(decor.ET_STYLE_GO),
		),
	)
	return &progressBar{p: p, bar: bar}
}

// set moves the bar to an absolute position
func (b *progressBar) set(current int64) {
	if b == nil {
		return
	}
	b.bar.SetCurrent(current)
}

func (b *progressBar) increment() {
	if b == nil {
		return
	}
	b.bar.Increment()
}

// finish completes the bar at its current position and waits for the last
// render
func (b *progressBar) finish() {
	if b == nil {
		return
	}
	b.bar.SetTotal(-1, true)
	b.p.Wait()
}
