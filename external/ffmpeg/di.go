package ffmpeg

import (
	"time"

	"github.com/marmolab/zvukozap/internal/config"
	"github.com/marmolab/zvukozap/internal/transcode"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (transcode.Transcoder, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewTranscoder(time.Duration(cfg.TranscodeTimeoutSec) * time.Second), nil
	})
}
