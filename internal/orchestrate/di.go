package orchestrate

import (
	"github.com/marmolab/zvukozap/internal/config"
	"github.com/marmolab/zvukozap/internal/segment"
	"github.com/marmolab/zvukozap/internal/transcribe"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Orchestrator, error) {
		cfg := do.MustInvoke[*config.Config](i)
		transcriber := do.MustInvoke[transcribe.Transcriber](i)
		segmenter := do.MustInvoke[*segment.Segmenter](i)
		labeler := do.MustInvoke[transcribe.Labeler](i)
		return NewOrchestrator(transcriber, segmenter, labeler, int64(cfg.MaxConcurrentCalls), Options{
			DefaultLanguage:    cfg.DefaultLanguage,
			SizeLimitBytes:     int64(cfg.APISizeLimitMB) << 20,
			SegmentDurationSec: float64(cfg.SegmentDurationSec),
			SpeakerLabeling:    cfg.SpeakerLabeling,
		}), nil
	})
}
