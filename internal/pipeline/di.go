package pipeline

import (
	"time"

	"github.com/marmolab/zvukozap/internal/config"
	"github.com/marmolab/zvukozap/internal/diarize"
	"github.com/marmolab/zvukozap/internal/fragment"
	"github.com/marmolab/zvukozap/internal/notify"
	"github.com/marmolab/zvukozap/internal/orchestrate"
	"github.com/marmolab/zvukozap/internal/recording"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Worker, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[recording.Repository](i)
		store := do.MustInvoke[*fragment.Store](i)
		orchestrator := do.MustInvoke[*orchestrate.Orchestrator](i)
		diarizer := do.MustInvoke[diarize.Diarizer](i)
		sender := do.MustInvoke[notify.Sender](i)
		return NewWorker(
			repo,
			store,
			orchestrator,
			diarizer,
			sender,
			time.Duration(cfg.WorkerPollSec)*time.Second,
			int64(cfg.MaxConcurrentJobs),
		), nil
	})
}
