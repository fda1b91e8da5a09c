package clients

import (
	"fmt"
	"path/filepath"

	"github.com/livepeer/dubworker/config"
	"github.com/livepeer/dubworker/pipeline"
)

// BuildCapabilityRegistry wires every transcribe_model/translation_service
// tag from §6 to a concrete Transcriber/Translator, grounded on §9's
// resolution that a small registry, not a giant switch, should own this
// construction.
func BuildCapabilityRegistry(cli config.Cli, modelsDir string, modelCache *pipeline.ModelCache) *pipeline.CapabilityRegistry {
	reg := pipeline.NewCapabilityRegistry()

	for _, size := range []pipeline.ModelSize{pipeline.ModelTiny, pipeline.ModelBase, pipeline.ModelSmall, pipeline.ModelMedium, pipeline.ModelLarge} {
		size := size
		reg.RegisterTranscriber(string(size), func(modelTag string) (pipeline.Transcriber, error) {
			return modelCache.GetOrLoad(size, func() (pipeline.Transcriber, error) {
				return NewLocalModel(size, "dubworker-transcribe", filepath.Join(modelsDir, string(size))), nil
			})
		})
	}
	reg.RegisterTranscriber("remote-api", func(modelTag string) (pipeline.Transcriber, error) {
		if cli.RemoteTranscribeURL == "" {
			return nil, fmt.Errorf("remote-api transcription not configured")
		}
		return NewRemoteApi(cli.RemoteTranscribeURL, cli.RemoteTranscribeKey), nil
	})

	reg.RegisterTranslator("free", func(serviceTag string) (pipeline.Translator, error) {
		if cli.FreeTranslationURL == "" {
			return nil, fmt.Errorf("free translation service not configured")
		}
		return NewFreeService(cli.FreeTranslationURL), nil
	})
	reg.RegisterTranslator("paid", func(serviceTag string) (pipeline.Translator, error) {
		if cli.PaidTranslationURL == "" {
			return nil, fmt.Errorf("paid translation api not configured")
		}
		return NewPaidApi(cli.PaidTranslationURL, cli.PaidTranslationKey), nil
	})

	return reg
}
