// Package pipeline runs the speech-in/speech-out loop of voxshift.
//
// An [Orchestrator] owns one run at a time. Start builds every collaborator
// through [Factories], starts the output sink, launches the processing and
// playback workers and finally starts capture. Frames flow through three
// contexts:
//
//   - the capture callback, owned by the audio backend, classifies each frame,
//     feeds the utterance buffer and hands finished utterances to a bounded
//     queue without ever blocking;
//   - the processing worker transcribes each utterance, filters noise,
//     synthesizes the text and pushes PCM chunks plus an [EndMarker] to the
//     audio queue;
//   - the playback worker writes chunks to the sink.
//
// The only state shared between them is the [State] value. It is guarded by
// a mutex, and changes reach every [Observer] in order from a delivery
// goroutine owned by the run, so neither the capture callback nor a worker
// ever waits for an observer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voxshift/internal/journal"
	"github.com/MrWong99/voxshift/internal/observe"
	"github.com/MrWong99/voxshift/internal/segment"
	"github.com/MrWong99/voxshift/internal/transcript"
	"github.com/MrWong99/voxshift/pkg/audio"
	"github.com/MrWong99/voxshift/pkg/provider/stt"
	"github.com/MrWong99/voxshift/pkg/provider/tts"
	"github.com/MrWong99/voxshift/pkg/provider/vad"
)

// Observer receives pipeline notifications, never while a pipeline lock is
// held. OnStateChange runs on the run's delivery goroutine, one change at a
// time in the order the changes happened; Stop returns only after Idle has
// been delivered. OnTranscription and OnError run synchronously on the
// goroutine that caused the event. OnStateChange must not call Start or Stop.
type Observer interface {
	OnStateChange(s State)
	OnTranscription(text string)
	OnError(err error)
}

// ObserverFuncs adapts plain functions to [Observer]. Nil fields are skipped.
type ObserverFuncs struct {
	StateChange   func(State)
	Transcription func(string)
	Error         func(error)
}

func (f ObserverFuncs) OnStateChange(s State) {
	if f.StateChange != nil {
		f.StateChange(s)
	}
}

func (f ObserverFuncs) OnTranscription(text string) {
	if f.Transcription != nil {
		f.Transcription(text)
	}
}

func (f ObserverFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

// Factories build the collaborators of one run. Start calls each of them
// exactly once. Collaborators that implement [io.Closer] are closed by Stop,
// or immediately when a later factory fails.
type Factories struct {
	Source func(ctx context.Context, cfg Config) (audio.Source, error)
	Sink   func(ctx context.Context, cfg Config) (audio.Sink, error)
	VAD    func(ctx context.Context, cfg Config) (vad.Engine, error)
	STT    func(ctx context.Context, cfg Config) (stt.Provider, error)
	TTS    func(ctx context.Context, cfg Config) (tts.Provider, error)
}

// Option is a functional option for [New].
type Option func(*Orchestrator)

// WithObserver registers obs. It may be given more than once.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, obs) }
}

// WithJournal records every processed utterance to j. The orchestrator does
// not close j.
func WithJournal(j journal.Store) Option {
	return func(o *Orchestrator) { o.journal = j }
}

// WithMetrics replaces [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger replaces slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// Orchestrator wires segmentation, transcription, synthesis and playback.
// All methods are safe for concurrent use.
type Orchestrator struct {
	cfg       Config
	factories Factories
	observers []Observer
	journal   journal.Store
	metrics   *observe.Metrics
	log       *slog.Logger
	filter    *NoiseFilter
	corrector *transcript.Corrector

	state stateHolder

	// mu serialises Start and Stop.
	mu  sync.Mutex
	run *run
}

// run holds everything built for one Start/Stop cycle. The capture callback
// and the workers close over their own run, so a restarted orchestrator
// never shares queues with a previous run.
type run struct {
	ctx    context.Context
	cancel context.CancelFunc

	source audio.Source
	sink   audio.Sink
	seg    *segment.Segmenter
	buf    *segment.UtteranceBuffer
	stt    stt.Provider
	tts    tts.Provider

	utterances *utteranceQueue
	audio      *audioQueue

	sinkStarted bool
	stopped     atomic.Bool
	stopNotify  func()
	wg          sync.WaitGroup
	closers     []func() error
}

// live reports whether this run may still move the pipeline from cur. A run
// whose Stop timed out keeps its worker, which must not touch the state of a
// later run.
func (r *run) live(cur State) bool {
	return !r.stopped.Load() && active(cur)
}

func (r *run) addCloser(v any) {
	if c, ok := v.(io.Closer); ok {
		r.closers = append(r.closers, c.Close)
	}
}

// close runs the closers in reverse construction order.
func (r *run) close() []error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errs
}

// New validates cfg and returns an idle orchestrator. Zero sample rate, chunk
// size, text length, queue sizes, timeouts and playback chunk size take the
// values of [DefaultConfig]; the VAD timings and aggressiveness are used as
// given.
func New(cfg Config, factories Factories, opts ...Option) (*Orchestrator, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: invalid config: %w", err)
	}
	o := &Orchestrator{
		cfg:       cfg,
		factories: factories,
		journal:   journal.Discard{},
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	o.filter = NewNoiseFilter(cfg.MinTextLength, cfg.NoiseWords)
	if len(cfg.Vocabulary) > 0 {
		o.corrector = transcript.New(cfg.Vocabulary)
	}
	o.state.notify = o.notifyState
	return o, nil
}

// Config returns the configuration the orchestrator was built with.
func (o *Orchestrator) Config() Config { return o.cfg }

// State returns the current pipeline state.
func (o *Orchestrator) State() State { return o.state.get() }

// Running reports whether a run is active.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.run != nil
}

// Start builds the collaborators and starts the pipeline. Any construction
// or device start failure returns an error wrapping [ErrConstruction], with
// everything already built torn down. ctx bounds construction only; the run
// lasts until Stop.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run != nil {
		return errors.New("pipeline: already running")
	}

	r, err := o.construct(ctx)
	if err != nil {
		o.log.Error("pipeline: construction failed", "err", err)
		return err
	}
	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	r.utterances = newUtteranceQueue(o.cfg.UtteranceQueueSize)
	r.audio = newAudioQueue(o.cfg.AudioQueueSize)

	if err := r.sink.Start(r.ctx); err != nil {
		r.cancel()
		if cerr := errors.Join(r.close()...); cerr != nil {
			o.log.Warn("pipeline: teardown after sink failure", "err", cerr)
		}
		return fmt.Errorf("%w: start output: %w", ErrConstruction, err)
	}
	r.sinkStarted = true
	r.stopNotify = o.state.start()

	r.wg.Go(func() { o.processLoop(r) })
	r.wg.Go(func() { o.playbackLoop(r) })
	o.run = r
	o.metrics.ActivePipelines.Add(r.ctx, 1)
	o.state.set(StateListening)

	if err := r.source.Start(r.ctx, o.captureCallback(r)); err != nil {
		o.run = nil
		if serr := o.shutdown(r); serr != nil {
			o.log.Warn("pipeline: teardown after capture failure", "err", serr)
		}
		return fmt.Errorf("%w: start capture: %w", ErrConstruction, err)
	}

	o.log.Info("pipeline started",
		"sample_rate", o.cfg.SampleRate,
		"chunk_ms", o.cfg.ChunkMs,
		"stt", o.cfg.STTEngine,
		"tts", o.cfg.TTSEngine,
		"voice", o.cfg.VoiceID,
	)
	return nil
}

// construct calls every factory in turn. On failure it closes whatever was
// already built and returns an error wrapping ErrConstruction.
func (o *Orchestrator) construct(ctx context.Context) (*run, error) {
	r := &run{}
	fail := func(what string, err error) (*run, error) {
		if cerr := errors.Join(r.close()...); cerr != nil {
			o.log.Warn("pipeline: teardown after construction failure", "err", cerr)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrConstruction, what, err)
	}

	f := o.factories
	if f.Source == nil || f.Sink == nil || f.VAD == nil || f.STT == nil || f.TTS == nil {
		return fail("factories", errors.New("every collaborator factory is required"))
	}

	engine, err := f.VAD(ctx, o.cfg)
	if err != nil {
		return fail("vad", err)
	}
	r.addCloser(engine)
	if r.seg, err = segment.NewSegmenter(engine, o.cfg.VAD()); err != nil {
		return fail("segmenter", err)
	}
	r.closers = append(r.closers, r.seg.Close)
	if r.buf, err = segment.NewUtteranceBuffer(o.cfg.Buffer()); err != nil {
		return fail("utterance buffer", err)
	}

	if r.stt, err = f.STT(ctx, o.cfg); err != nil {
		return fail("stt", err)
	}
	r.addCloser(r.stt)
	if r.tts, err = f.TTS(ctx, o.cfg); err != nil {
		return fail("tts", err)
	}
	r.addCloser(r.tts)
	if r.source, err = f.Source(ctx, o.cfg); err != nil {
		return fail("audio input", err)
	}
	if r.sink, err = f.Sink(ctx, o.cfg); err != nil {
		return fail("audio output", err)
	}
	return r, nil
}

// Stop halts the pipeline: capture stops first, the workers get
// Config.StopTimeout to finish, then the sink and the collaborators are
// closed. Stop is idempotent and safe after a failed Start.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	r := o.run
	if r == nil {
		return nil
	}
	o.run = nil
	return o.shutdown(r)
}

func (o *Orchestrator) shutdown(r *run) error {
	o.state.set(StateStopping)
	r.stopped.Store(true)
	r.cancel()

	var errs []error
	if err := r.source.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop capture: %w", err))
	}

	joined := waitTimeout(&r.wg, o.cfg.StopTimeout)
	if !joined {
		o.log.Warn("pipeline: workers still busy after stop timeout", "timeout", o.cfg.StopTimeout)
	}
	if r.sinkStarted {
		if err := r.sink.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop output: %w", err))
		}
	}
	if joined {
		errs = append(errs, r.close()...)
	} else {
		o.log.Warn("pipeline: leaving providers open for the busy worker")
	}

	o.metrics.ActivePipelines.Add(context.Background(), -1)
	o.state.set(StateIdle)
	r.stopNotify()
	o.log.Info("pipeline stopped")
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("pipeline: stop: %w", err)
	}
	return nil
}

// waitTimeout waits for wg and reports whether it finished within d.
func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}

// ─── Capture ─────────────────────────────────────────────────────────────────

func (o *Orchestrator) captureCallback(r *run) audio.FrameCallback {
	return func(frame []byte) {
		defer func() {
			if p := recover(); p != nil {
				o.log.Error("pipeline: capture callback panicked, frame dropped", "panic", p)
			}
		}()
		if r.stopped.Load() {
			return
		}

		speech := r.seg.IsSpeech(frame)
		if speech {
			o.state.update(func(cur State) (State, bool) {
				return StateRecording, !r.stopped.Load() && cur == StateListening
			})
		}

		pcm, done := r.buf.Push(frame, speech)
		if !done {
			return
		}
		u := utterance{id: uuid.New(), pcm: pcm, capturedAt: time.Now()}

		// Enqueue under the state lock so Processing is visible before the
		// worker can move the state on.
		var queued bool
		o.state.update(func(cur State) (State, bool) {
			queued = r.utterances.tryPush(u)
			return StateProcessing, queued && r.live(cur)
		})
		if !queued {
			o.dropUtterance(r, u)
		}
	}
}

func (o *Orchestrator) dropUtterance(r *run, u utterance) {
	o.log.Warn("pipeline: utterance queue full, dropping utterance",
		"id", u.id, "bytes", len(u.pcm), "capacity", o.cfg.UtteranceQueueSize)
	o.metrics.RecordUtterance(r.ctx, string(journal.OutcomeDropped))

	entry := journal.Entry{
		ID:            u.id,
		CapturedAt:    u.capturedAt,
		Outcome:       journal.OutcomeDropped,
		Reason:        "utterance queue full",
		AudioDuration: o.cfg.Format().Duration(len(u.pcm)),
	}
	// The journal may block on I/O; the capture callback may not.
	go o.record(context.WithoutCancel(r.ctx), entry)

	o.reportError(fmt.Errorf("%w: queue full with %d pending", ErrCaptureDropped, r.utterances.len()))
}

// ─── Processing ──────────────────────────────────────────────────────────────

func (o *Orchestrator) processLoop(r *run) {
	for r.ctx.Err() == nil {
		u, ok := r.utterances.pop(r.ctx, o.cfg.PollTimeout)
		if !ok || r.ctx.Err() != nil {
			continue
		}
		o.process(r, u)
	}
}

// process handles one utterance end to end. Provider calls use a context
// detached from the stop signal so an in-flight request runs to completion;
// only the audio queue push observes Stop.
func (o *Orchestrator) process(r *run, u utterance) {
	ctx, span := observe.StartSpan(context.WithoutCancel(r.ctx), "pipeline.utterance",
		trace.WithAttributes(
			attribute.String("utterance.id", u.id.String()),
			attribute.Int("utterance.bytes", len(u.pcm)),
		),
	)
	log := observe.Logger(ctx, o.log.With("utterance", u.id))

	entry := journal.Entry{
		ID:            u.id,
		CapturedAt:    u.capturedAt,
		AudioDuration: o.cfg.Format().Duration(len(u.pcm)),
	}
	var spanErr error
	defer func() {
		o.toListening(r)
		o.metrics.RecordUtterance(ctx, string(entry.Outcome))
		o.record(ctx, entry)
		span.SetAttributes(attribute.String("utterance.outcome", string(entry.Outcome)))
		observe.EndSpan(span, spanErr)
	}()
	o.metrics.UtteranceAudio.Record(ctx, entry.AudioDuration.Seconds())

	start := time.Now()
	text, err := r.stt.Transcribe(ctx, u.pcm)
	entry.STTDuration = time.Since(start)
	o.metrics.STTDuration.Record(ctx, entry.STTDuration.Seconds())
	if err != nil {
		spanErr = fmt.Errorf("%w: %w", ErrTranscription, err)
		entry.Outcome, entry.Reason = journal.OutcomeFailed, err.Error()
		o.metrics.RecordProviderRequest(ctx, o.cfg.STTEngine, "stt", "error")
		o.metrics.RecordProviderError(ctx, o.cfg.STTEngine, "stt")
		log.Error("pipeline: transcription failed", "err", err, "duration", entry.STTDuration)
		o.reportError(spanErr)
		return
	}
	o.metrics.RecordProviderRequest(ctx, o.cfg.STTEngine, "stt", "ok")
	if o.corrector != nil {
		if fixed, fixes := o.corrector.Correct(text); len(fixes) > 0 {
			log.Debug("pipeline: vocabulary corrected", "raw", text, "corrections", len(fixes))
			text = fixed
		}
	}
	entry.Text = text
	log.Info("pipeline: transcribed", "text", text, "duration", entry.STTDuration)

	for _, obs := range o.observers {
		obs.OnTranscription(text)
	}

	if reason, rejected := o.filter.Reject(text); rejected {
		entry.Outcome, entry.Reason = journal.OutcomeFiltered, reason
		log.Debug("pipeline: transcript ignored", "reason", reason, "text", text)
		return
	}

	o.state.update(func(cur State) (State, bool) {
		return StateStreaming, r.live(cur)
	})

	start = time.Now()
	n, interrupted, err := o.synthesize(ctx, r, u.id, strings.TrimSpace(text))
	entry.TTSDuration = time.Since(start)
	entry.SynthBytes = n
	o.metrics.TTSDuration.Record(ctx, entry.TTSDuration.Seconds())

	switch {
	case err != nil:
		spanErr = fmt.Errorf("%w: %w", ErrSynthesis, err)
		entry.Outcome, entry.Reason = journal.OutcomeFailed, err.Error()
		o.metrics.RecordProviderRequest(ctx, o.cfg.TTSEngine, "tts", "error")
		o.metrics.RecordProviderError(ctx, o.cfg.TTSEngine, "tts")
		log.Error("pipeline: synthesis failed", "err", err, "bytes", n)
		o.reportError(spanErr)
	case interrupted:
		entry.Outcome, entry.Reason = journal.OutcomeFailed, "pipeline stopped"
		log.Info("pipeline: playback queue closed by stop", "bytes", n)
	default:
		o.metrics.RecordProviderRequest(ctx, o.cfg.TTSEngine, "tts", "ok")
		entry.Outcome = journal.OutcomeSpoken
		if n == 0 {
			log.Warn("pipeline: synthesis returned no audio")
		}
		log.Info("pipeline: synthesized", "bytes", n, "duration", entry.TTSDuration)
	}
}

// synthesize queues the audio for text followed by an EndMarker and returns
// the number of PCM bytes queued. interrupted reports that Stop closed the
// queue before everything was pushed.
func (o *Orchestrator) synthesize(ctx context.Context, r *run, id uuid.UUID, text string) (n int, interrupted bool, err error) {
	voice := tts.Voice(o.cfg.VoiceID)

	var seq iter.Seq2[[]byte, error]
	if o.cfg.StreamSynthesis {
		seq = r.tts.SynthesizeStream(ctx, text, voice)
	} else if pcm, serr := r.tts.SynthesizeOnce(ctx, text, voice); serr != nil {
		seq = tts.Fail(serr)
	} else {
		seq = tts.Chunks(pcm, o.cfg.PlaybackChunkBytes)
	}

	for chunk, cerr := range seq {
		if cerr != nil {
			err = cerr
			break
		}
		if len(chunk) == 0 {
			continue
		}
		if perr := r.audio.push(r.ctx, Chunk{UtteranceID: id, PCM: chunk}); perr != nil {
			interrupted = true
			break
		}
		n += len(chunk)
	}

	end := EndMarker(id)
	if r.ctx.Err() == nil {
		if r.audio.push(r.ctx, end) != nil {
			interrupted = true
		}
	} else if !r.audio.tryPush(end) {
		interrupted = true
	}
	return n, interrupted, err
}

// toListening returns a running pipeline to Listening.
func (o *Orchestrator) toListening(r *run) {
	o.state.update(func(cur State) (State, bool) {
		return StateListening, r.live(cur)
	})
}

// ─── Playback ────────────────────────────────────────────────────────────────

func (o *Orchestrator) playbackLoop(r *run) {
	for r.ctx.Err() == nil {
		c, ok := r.audio.pop(r.ctx, o.cfg.PollTimeout)
		if !ok {
			continue
		}
		if c.End {
			o.log.Debug("pipeline: end of utterance audio", "utterance", c.UtteranceID)
			continue
		}
		if err := r.sink.Write(r.ctx, c.PCM); err != nil {
			if r.ctx.Err() != nil {
				return
			}
			werr := fmt.Errorf("%w: %w", ErrPlayback, err)
			o.log.Error("pipeline: playback failed", "utterance", c.UtteranceID, "bytes", len(c.PCM), "err", err)
			o.reportError(werr)
			continue
		}
		o.metrics.RecordPlayback(r.ctx, len(c.PCM))
	}
}

// ─── Notifications ───────────────────────────────────────────────────────────

func (o *Orchestrator) notifyState(s State) {
	defer func() {
		if p := recover(); p != nil {
			o.log.Error("pipeline: state observer panicked", "state", s, "panic", p)
		}
	}()
	o.log.Debug("pipeline: state changed", "state", s)
	o.metrics.RecordStateTransition(context.Background(), s.String())
	for _, obs := range o.observers {
		obs.OnStateChange(s)
	}
}

func (o *Orchestrator) reportError(err error) {
	for _, obs := range o.observers {
		obs.OnError(err)
	}
}

func (o *Orchestrator) record(ctx context.Context, e journal.Entry) {
	if err := o.journal.Record(ctx, e); err != nil {
		o.log.Warn("pipeline: journal record failed", "utterance", e.ID, "err", err)
	}
}
