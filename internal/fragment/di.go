package fragment

import (
	"github.com/marmolab/zvukozap/internal/config"
	"github.com/marmolab/zvukozap/internal/recording"
	"github.com/marmolab/zvukozap/internal/transcode"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Store, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[recording.Repository](i)
		transcoder := do.MustInvoke[transcode.Transcoder](i)
		return NewStore(cfg.DataDir, repo, transcoder), nil
	})
}
