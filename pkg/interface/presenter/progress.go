package presenter

import (
	"context"
	"io"
	"time"

	"github.com/WangYihang/crcns-mirror/pkg/common"
	"github.com/WangYihang/crcns-mirror/pkg/domain/entity"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// progressScale maps a fraction in [0, 1] onto bar units
const progressScale = 1000

// TransferView draws one bar per file transfer
type TransferView struct {
	p *mpb.Progress
}

// NewTransferView creates a view writing to w
func NewTransferView(ctx context.Context, w io.Writer) *TransferView {
	return &TransferView{
		p: mpb.NewWithContext(ctx,
			mpb.WithOutput(w),
			mpb.WithWidth(barWidth()),
		),
	}
}

// Track adds a bar for key fed by updates. The bar completes when 1.0
// arrives and is aborted, but kept on screen, if updates closes early.
func (v *TransferView) Track(key entity.AcquisitionKey, updates <-chan float64) {
	bar := v.p.AddBar(progressScale,
		mpb.BarOptional(mpb.BarRemoveOnComplete(), false),
		mpb.PrependDecorators(
			decor.Name(key.Filename, decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WCSyncSpace),
			decor.OnComplete(
				decor.EwmaETA(decor.ET_STYLE_GO, 30, decor.WCSyncSpace), "done",
			),
		),
	)

	go func() {
		last := time.Now()
		for fraction := range updates {
			now := time.Now()
			bar.EwmaSetCurrent(int64(fraction*progressScale), now.Sub(last))
			last = now
		}
		if !bar.Completed() {
			bar.Abort(false)
		}
	}()
}

// Wait blocks until every bar has completed or aborted
func (v *TransferView) Wait() {
	v.p.Wait()
}

func barWidth() int {
	if common.TerminalWidth <= 0 {
		return 80
	}
	return common.TerminalWidth / 2
}
