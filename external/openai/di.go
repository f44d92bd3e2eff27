package openai

import (
	"github.com/marmolab/zvukozap/internal/config"
	"github.com/marmolab/zvukozap/internal/transcribe"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (transcribe.Transcriber, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewClient(Config{
			APIKey:        c.OpenAIAPIKey,
			BaseURL:       c.OpenAIBaseURL,
			BaselineModel: c.BaselineModel,
			FastModel:     c.FastModel,
			AccurateModel: c.AccurateModel,
		}), nil
	})
	do.Provide(injector, func(i do.Injector) (transcribe.Labeler, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewChatLabeler(LabelerConfig{
			APIKey:  c.OpenAIAPIKey,
			BaseURL: c.OpenAIBaseURL,
			Model:   c.LabelModel,
		}), nil
	})
}
