package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/livepeer/dubworker/config"
	"github.com/livepeer/dubworker/errors"
	"github.com/livepeer/dubworker/log"
	"github.com/livepeer/dubworker/metrics"
	"github.com/livepeer/dubworker/progress"
	"github.com/livepeer/dubworker/registry"
	"github.com/livepeer/dubworker/store"
)

// taskRun holds the per-invocation state threaded through S1-S9; it exists
// so runTask's orchestration doesn't need a dozen positional parameters
// passed stage to stage.
type taskRun struct {
	engine    *Engine
	ctx       context.Context
	taskID    string
	workspace string
	rec       *registry.TaskRecord
	reporter  *progress.Reporter

	sourcePath     string
	sourceMeta     registry.SourceMetadata
	audioPath      string
	segments       []Segment
	detectedLang   string
	translated     []Segment
	modelUsed      string
	serviceUsed    string
	result         registry.Result
}

// execute runs every enabled stage in order, stopping at the first
// failure. It returns whatever partial result had accumulated so far
// (e.g. subtitles already published even though burn-in failed), per
// §4.9's "partial artifacts remain attached on failure" requirement.
func (r *taskRun) execute() (*registry.Result, *errors.TaskError) {
	stages := []struct {
		name string
		fn   func() *errors.TaskError
	}{
		{"acquire", r.stageAcquire},
		{"probe", r.stageProbe},
		{"extract_audio", r.stageExtractAudio},
		{"transcribe", r.stageTranscribe},
		{"translate", r.stageTranslate},
		{"emit_subtitles", r.stageEmitSubtitles},
		{"burn_in", r.stageBurnIn},
		{"verify_container", r.stageVerifyContainer},
		{"publish", r.stagePublish},
	}

	for _, stage := range stages {
		if stage.name == "translate" && r.rec.UserChoices.TargetLang == "" {
			continue
		}
		if stage.name == "burn_in" && !r.rec.UserChoices.BurnIn {
			continue
		}

		r.reporter.StepStart(stage.name)
		start := config.Clock.GetTime()
		if taskErr := r.runWithTimer(stage.name, stage.fn); taskErr != nil {
			r.reporter.StepError(stage.name, taskErr.Message)
			metrics.Default.StageFailureCount.WithLabelValues(stage.name, string(taskErr.Code)).Inc()
			return &r.result, taskErr
		}
		metrics.Default.StageDurationSec.WithLabelValues(stage.name).Observe(time.Since(start).Seconds())
		r.reporter.StepComplete(stage.name)
	}

	r.result.ModelUsed = r.modelUsed
	r.result.ServiceUsed = r.serviceUsed
	return &r.result, nil
}

func (r *taskRun) runWithTimer(name string, fn func() *errors.TaskError) *errors.TaskError {
	select {
	case <-r.ctx.Done():
		return errors.NewTaskError(errors.TimeoutExceeded, fmt.Sprintf("stage %s exceeded soft time limit", name), r.ctx.Err())
	default:
	}
	return fn()
}

// stageAcquire is S1: for an upload the file is already staged by the
// Intake API before enqueue; for a remote URL this downloads it now. When
// the request carries a start/end time range (§4.6.6), the acquired
// source is trimmed in place here so every downstream stage — audio
// extraction, burn-in, publish — operates on the bounded source and the
// §8 round-trip duration property holds for whatever artifact it produces.
func (r *taskRun) stageAcquire() *errors.TaskError {
	switch r.rec.InitialRequest.Kind {
	case registry.KindUpload:
		// The Intake API stores uploads under the intake directory, which
		// is read-only to workers except for this move into the per-task
		// workspace (§5's shared-resource policy).
		intakePath := filepath.Join(r.engine.Cli.IntakeDir, config.SanitizeFilename(r.rec.InitialRequest.Filename))
		dest := workspacePath(r.workspace, config.SanitizeFilename(r.rec.InitialRequest.Filename))
		if err := os.Rename(intakePath, dest); err != nil {
			return errors.NewTaskError(errors.Infrastructure, fmt.Sprintf("moving staged upload into workspace: %v", err), err)
		}
		r.sourcePath = dest
		if te := r.trimToRequestedRange(); te != nil {
			return te
		}
		return r.markChainedIntoProcessing()
	case registry.KindRemoteURL, registry.KindDownloadOnly:
		dest := workspacePath(r.workspace, "source"+config.SanitizeFilename(filepathExt(r.rec.InitialRequest.URL)))
		_, err := r.engine.Downloader.Download(r.ctx, r.taskID, r.rec.InitialRequest.URL, dest, func(copied, total int64) {
			if total > 0 {
				r.reporter.StepProgress("acquire", float64(copied)/float64(total)*100, false, "")
			} else {
				r.reporter.StepProgress("acquire", 0, true, "")
			}
		})
		if err != nil {
			return errors.NewTaskError(errors.DownloadFailed, fmt.Sprintf("downloading source: %v", err), err)
		}
		r.sourcePath = dest
		if te := r.trimToRequestedRange(); te != nil {
			return te
		}
		return r.markChainedIntoProcessing()
	default:
		return errors.NewTaskError(errors.BadRequest, fmt.Sprintf("unknown request kind %q", r.rec.InitialRequest.Kind), nil)
	}
}

// trimToRequestedRange cuts r.sourcePath down to [StartTime, EndTime) when
// the request named either bound, mirroring the /cut edit operation's
// ffmpeg invocation so every later stage (audio extraction, burn-in,
// publish) sees an already-bounded source rather than having to re-derive
// the range itself.
func (r *taskRun) trimToRequestedRange() *errors.TaskError {
	start := r.rec.InitialRequest.StartTime
	end := r.rec.InitialRequest.EndTime
	if start == "" && end == "" {
		return nil
	}
	trimmed := workspacePath(r.workspace, "source.trimmed"+filepath.Ext(r.sourcePath))
	if err := r.engine.Renderer.Trim(r.ctx, r.taskID, r.sourcePath, start, end, trimmed); err != nil {
		return taskErrorOrWrap(err, errors.RenderError)
	}
	r.sourcePath = trimmed
	return nil
}

// markChainedIntoProcessing records chained_task_id (§4.6.7/§9 Open
// Question 3) once the download stage hands off into the processing stage
// set. Both kinds flow through the same task_id, so this always points a
// task at itself; download-only tasks have no processing stage set to hand
// off to, so they're excluded.
func (r *taskRun) markChainedIntoProcessing() *errors.TaskError {
	if r.rec.InitialRequest.Kind == registry.KindDownloadOnly {
		return nil
	}
	if err := r.engine.Registry.SetChainedTaskID(r.ctx, r.taskID, r.taskID); err != nil {
		return errors.NewTaskError(errors.Infrastructure, fmt.Sprintf("recording chained task id: %v", err), err)
	}
	return nil
}

// stageProbe is S2. Uploads are probed synchronously by the Intake API
// before enqueue (§4.3), so this is a no-op when SourceMetadata is already
// populated; remote-URL tasks probe here, after download.
func (r *taskRun) stageProbe() *errors.TaskError {
	if r.rec.SourceMetadata != nil {
		r.sourceMeta = *r.rec.SourceMetadata
		return nil
	}
	meta, err := r.engine.Prober.Probe(r.ctx, r.taskID, r.sourcePath)
	if err != nil {
		return errors.NewTaskError(errors.ProbeFailed, fmt.Sprintf("probing downloaded source: %v", err), err)
	}
	r.sourceMeta = meta
	if err := r.engine.Registry.SetSourceMetadata(r.ctx, r.taskID, meta); err != nil {
		return errors.NewTaskError(errors.Infrastructure, fmt.Sprintf("persisting source metadata: %v", err), err)
	}
	return nil
}

// stageExtractAudio is S3.
func (r *taskRun) stageExtractAudio() *errors.TaskError {
	if r.rec.InitialRequest.Kind == registry.KindDownloadOnly {
		return nil // download-only tasks skip the whole transcription/translation chain
	}
	r.audioPath = workspacePath(r.workspace, "audio.wav")
	if err := r.engine.Renderer.ExtractAudio(r.ctx, r.taskID, r.sourcePath, r.audioPath); err != nil {
		if te, ok := err.(*errors.TaskError); ok {
			return te
		}
		return errors.NewTaskError(errors.AudioExtractionError, err.Error(), err)
	}
	return nil
}

// stageTranscribe is S4, with the model-size downgrade ladder from
// §4.6.2/§9: on any transcription failure of a local model when the operator
// opted in via AllowModelDowngrade, the model cache entry for the failed
// size is evicted and the next rung down is tried.
func (r *taskRun) stageTranscribe() *errors.TaskError {
	if r.rec.InitialRequest.Kind == registry.KindDownloadOnly {
		return nil
	}

	tag := r.rec.UserChoices.TranscribeModel
	if tag == "" {
		tag = r.engine.Cli.DefaultModel
	}

	for {
		transcriber, err := r.engine.Caps.Transcriber(tag)
		if err != nil {
			return errors.NewTaskError(errors.TranscriptionError, err.Error(), err)
		}

		segments, detected, errc := transcriber.Transcribe(r.ctx, r.audioPath, r.rec.UserChoices.SourceLang)
		var collected []Segment
		var streamErr error
		for segments != nil || detected != nil || errc != nil {
			select {
			case s, ok := <-segments:
				if !ok {
					segments = nil
					continue
				}
				collected = append(collected, s)
				r.reporter.StepProgress("transcribe", estimateTranscribeProgress(s, r.sourceMeta.DurationS), false, "")
			case lang, ok := <-detected:
				if !ok {
					detected = nil
					continue
				}
				r.detectedLang = lang
			case e, ok := <-errc:
				if !ok {
					errc = nil
					continue
				}
				streamErr = e
			}
		}

		if streamErr == nil {
			r.segments = collected
			r.modelUsed = transcriber.Name()
			return nil
		}

		size, isLocal := modelSizeForTag(tag)
		if isLocal && r.engine.Cli.AllowModelDowngrade {
			next := DowngradeLadder(size)
			if next != "" {
				log.Log(r.taskID, "transcription failed, downgrading model", "from", size, "to", next, "err", streamErr)
				r.engine.ModelCache.Evict(size)
				tag = string(next)
				continue
			}
		}
		return taskErrorOrWrap(streamErr, errors.TranscriptionError)
	}
}

func estimateTranscribeProgress(last Segment, durationS float64) float64 {
	if durationS <= 0 {
		return 0
	}
	pct := last.End / durationS * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

func modelSizeForTag(tag string) (ModelSize, bool) {
	switch ModelSize(tag) {
	case ModelTiny, ModelBase, ModelSmall, ModelMedium, ModelLarge:
		return ModelSize(tag), true
	default:
		return "", false
	}
}

// stageTranslate is S5, overlapping with S4 conceptually (the engine has
// already drained the full transcript by the time this runs, but the
// batch/parallel fan-out here is the same mechanism that would feed a
// true streaming overlap if the transcriber emitted asynchronously to a
// shared channel; see boundedBatchTranslate).
func (r *taskRun) stageTranslate() *errors.TaskError {
	if len(r.segments) == 0 {
		return nil
	}
	translator, err := r.engine.Caps.Translator(r.rec.UserChoices.TranslationService)
	if err != nil {
		return errors.NewTaskError(errors.TranslationError, err.Error(), err)
	}

	srcLang := r.rec.UserChoices.SourceLang
	if srcLang == "" {
		srcLang = r.detectedLang
	}

	translated, terr := boundedBatchTranslate(r.ctx, translator, r.segments, srcLang, r.rec.UserChoices.TargetLang,
		r.engine.Cli.TranslationBatchSize, r.engine.Cli.TranslationParallel)
	if terr != nil {
		if te, ok := terr.(*errors.TaskError); ok {
			return te
		}
		return errors.NewTaskError(errors.TranslationError, terr.Error(), terr)
	}
	r.translated = translated
	r.serviceUsed = translator.Name()
	r.reporter.StepProgress("translate", 100, false, "")
	return nil
}

// stageEmitSubtitles is S6: writes the original-language SRT always, and
// the translated-language SRT when translation ran, publishing both as
// artifacts (§4.6 Stage table).
func (r *taskRun) stageEmitSubtitles() *errors.TaskError {
	if len(r.segments) == 0 {
		return nil
	}

	origPath := workspacePath(r.workspace, "original.srt")
	if err := r.engine.EmitSRT(r.segments, r.rec.UserChoices.SourceLang, origPath); err != nil {
		return taskErrorOrWrap(err, errors.SubtitleEmitError)
	}
	origArtifact, err := r.engine.Store.Publish(r.ctx, r.taskID, origPath, store.OriginalSubs)
	if err != nil {
		return errors.NewTaskError(errors.SubtitleEmitError, fmt.Sprintf("publishing original subtitles: %v", err), err)
	}
	r.result.Files.OriginalSubs = origArtifact.Path

	if len(r.translated) > 0 {
		translatedPath := workspacePath(r.workspace, "translated.srt")
		if err := r.engine.EmitSRT(r.translated, r.rec.UserChoices.TargetLang, translatedPath); err != nil {
			return taskErrorOrWrap(err, errors.SubtitleEmitError)
		}
		translatedArtifact, err := r.engine.Store.Publish(r.ctx, r.taskID, translatedPath, store.TranslatedSubs)
		if err != nil {
			return errors.NewTaskError(errors.SubtitleEmitError, fmt.Sprintf("publishing translated subtitles: %v", err), err)
		}
		r.result.Files.TranslatedSubs = translatedArtifact.Path
	}
	return nil
}

// stageBurnIn is S7, optional per user_choices.burn_in.
func (r *taskRun) stageBurnIn() *errors.TaskError {
	subtitlePath := workspacePath(r.workspace, "translated.srt")
	if len(r.translated) == 0 {
		subtitlePath = workspacePath(r.workspace, "original.srt")
	}

	opts := BurnInOptions{
		SourcePath:   r.sourcePath,
		SubtitlePath: subtitlePath,
		DestPath:     workspacePath(r.workspace, "output.mp4"),
	}
	if r.rec.UserChoices.Watermark.Enabled {
		opts.WatermarkPath = r.rec.UserChoices.Watermark.LogoRef
		opts.WatermarkPos = r.rec.UserChoices.Watermark.Position
		opts.WatermarkSize = r.rec.UserChoices.Watermark.Size
		opts.WatermarkOpac = r.rec.UserChoices.Watermark.Opacity
	}

	if err := r.engine.Renderer.BurnIn(r.ctx, r.taskID, opts); err != nil {
		return taskErrorOrWrap(err, errors.RenderError)
	}
	return nil
}

// stageVerifyContainer is S8.
func (r *taskRun) stageVerifyContainer() *errors.TaskError {
	if !r.rec.UserChoices.BurnIn {
		return nil
	}
	_, err := r.engine.Renderer.VerifyContainer(r.ctx, r.taskID, workspacePath(r.workspace, "output.mp4"))
	if err != nil {
		return taskErrorOrWrap(err, errors.FormatError)
	}
	return nil
}

// stagePublish is S9: moves the final burned-in video (or, for
// download-only tasks, the raw downloaded source) into the artifacts
// directory and cleans up the scratch workspace (deferred in runTask).
func (r *taskRun) stagePublish() *errors.TaskError {
	if r.rec.InitialRequest.Kind == registry.KindDownloadOnly {
		artifact, err := r.engine.Store.Publish(r.ctx, r.taskID, r.sourcePath, store.RawDownload)
		if err != nil {
			return errors.NewTaskError(errors.Infrastructure, fmt.Sprintf("publishing raw download: %v", err), err)
		}
		r.result.Files.DownloadedFile = artifact.Path
		return nil
	}
	if r.rec.UserChoices.BurnIn {
		artifact, err := r.engine.Store.Publish(r.ctx, r.taskID, workspacePath(r.workspace, "output.mp4"), store.SubtitledVideo)
		if err != nil {
			return errors.NewTaskError(errors.Infrastructure, fmt.Sprintf("publishing rendered video: %v", err), err)
		}
		r.result.Files.SubtitledVideo = artifact.Path
	}
	return nil
}

func taskErrorOrWrap(err error, fallback errors.Code) *errors.TaskError {
	if te, ok := err.(*errors.TaskError); ok {
		return te
	}
	return errors.NewTaskError(fallback, err.Error(), err)
}

func filepathExt(url string) string {
	for i := len(url) - 1; i >= 0 && i > len(url)-8; i-- {
		if url[i] == '.' {
			return url[i:]
		}
		if url[i] == '/' {
			break
		}
	}
	return ""
}
