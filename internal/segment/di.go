package segment

import (
	"github.com/marmolab/zvukozap/internal/transcode"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Segmenter, error) {
		return NewSegmenter(do.MustInvoke[transcode.Transcoder](i)), nil
	})
}
