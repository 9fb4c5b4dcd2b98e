package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

// bar adapts a progressbar to ingest.ProgressFunc. The bar is created on
// the first report, once the total is known.
type bar struct {
	pb    *progressbar.ProgressBar
	total int
	stage string
}

func newBar() *bar { return &bar{} }

func (b *bar) update(current, total int, stage string) {
	if b.pb == nil || total != b.total {
		b.reset(total)
	}
	if stage != b.stage {
		b.stage = stage
		b.pb.Describe(color.BlueString("%-10s", stage))
	}
	_ = b.pb.Set(current)
}

func (b *bar) reset(total int) {
	if b.pb != nil {
		_ = b.pb.Finish()
	}
	b.total = total
	b.pb = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func (b *bar) finish() {
	if b.pb != nil {
		_ = b.pb.Finish()
		os.Stderr.WriteString("\n")
	}
}
