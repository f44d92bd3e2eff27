package diarize

import (
	"github.com/marmolab/zvukozap/internal/config"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (Diarizer, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewPauseDiarizer(PauseDiarizerConfig{
			SilenceThresholdDB: cfg.SilenceThresholdDB,
			MinSegmentSec:      cfg.MinSilenceSec,
			TurnGapSec:         cfg.TurnGapSec,
		}), nil
	})
}
