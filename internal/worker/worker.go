// Package worker provides a NATS worker that turns processed text into audio.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/voice-engine/internal/core"
	"github.com/book-expert/voice-engine/internal/engine"
	"github.com/book-expert/voice-engine/internal/humanize"
)

// DefaultJobTimeout bounds one message when no timeout is configured.
const DefaultJobTimeout = 30 * time.Second

var (
	// ErrTextKeyEmpty indicates an event without a text key.
	ErrTextKeyEmpty = errors.New("text key cannot be empty")
	// ErrVoiceEmpty indicates that neither the event nor the defaults name a voice.
	ErrVoiceEmpty = errors.New("voice cannot be empty")
)

// Generator produces audio for a request. *engine.Engine implements it.
type Generator interface {
	Generate(ctx context.Context, req engine.Request) (*core.AudioArtifact, error)
}

// Defaults fill in what a TextProcessedEvent does not carry.
type Defaults struct {
	Voice    core.VoiceConfig
	Tier     core.Tier
	Validate bool
	Cache    bool
}

// NatsWorker listens for processed text on a NATS subject and replies with the
// key of the generated audio. When announceSubject is set the reply is also
// published there for consumers that did not make the request.
type NatsWorker struct {
	natsConnection  *nats.Conn
	subject         string
	announceSubject string
	store           core.ObjectStore
	generator       Generator
	defaults        Defaults
	jobTimeout      time.Duration
	log             *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker. A non-positive
// jobTimeout selects DefaultJobTimeout.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	announceSubject string,
	store core.ObjectStore,
	generator Generator,
	defaults Defaults,
	jobTimeout time.Duration,
	log *logger.Logger,
) *NatsWorker {
	if jobTimeout <= 0 {
		jobTimeout = DefaultJobTimeout
	}

	return &NatsWorker{
		natsConnection:  natsConnection,
		subject:         subject,
		announceSubject: announceSubject,
		store:           store,
		generator:       generator,
		defaults:        defaults,
		jobTimeout:      jobTimeout,
		log:             log,
	}
}

// Run starts the worker and blocks until ctx is cancelled.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info("Listening for text on %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.jobTimeout)
	defer cancel()

	event, err := w.parseAndValidateEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse and validate event: %v", err)

		return
	}

	audioKey, processErr := w.processJob(ctx, event)
	if processErr != nil {
		w.log.Error("Failed to generate audio for workflow %s: %v", event.Header.WorkflowID, processErr)

		return
	}

	replyEvent := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   audioKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}

	err = w.publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", event.Header.WorkflowID, err)
	}
}

// processJob downloads the text, generates audio, and uploads it.
func (w *NatsWorker) processJob(ctx context.Context, event *events.TextProcessedEvent) (string, error) {
	textData, err := w.store.Download(ctx, event.TextKey)
	if err != nil {
		return "", fmt.Errorf("failed to download text data for key '%s': %w", event.TextKey, err)
	}

	req, err := w.buildRequest(event, string(textData))
	if err != nil {
		return "", err
	}

	artifact, err := w.generator.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to generate audio: %w", err)
	}

	audioKey := uuid.NewString() + "." + artifact.Format

	err = w.store.Upload(ctx, audioKey, artifact.Audio)
	if err != nil {
		return "", fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err)
	}

	w.log.Info("Uploaded %s audio %s (%s, %s) for page %d/%d", artifact.Backend, audioKey,
		humanize.Seconds(artifact.Duration), humanize.Bytes(len(artifact.Audio)), event.PageNumber, event.TotalPages)

	return audioKey, nil
}

func (w *NatsWorker) buildRequest(event *events.TextProcessedEvent, input string) (engine.Request, error) {
	voice := w.defaults.Voice
	if event.Voice != "" {
		voice.VoiceID = event.Voice
	}

	if voice.VoiceID == "" {
		return engine.Request{}, ErrVoiceEmpty
	}

	req := engine.NewRequest(input, voice)
	req.Validate = w.defaults.Validate
	req.Cache = w.defaults.Cache
	req.UserID = event.Header.UserID
	req.SessionID = event.Header.WorkflowID

	if w.defaults.Tier != "" {
		req.Tier = w.defaults.Tier
	}

	return req, nil
}

// publishReplyEvent marshals and responds with the AudioChunkCreatedEvent.
func (w *NatsWorker) publishReplyEvent(msg *nats.Msg, replyEvent *events.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	if w.announceSubject != "" {
		err = w.natsConnection.Publish(w.announceSubject, replyData)
		if err != nil {
			return fmt.Errorf("failed to announce audio chunk on %s: %w", w.announceSubject, err)
		}
	}

	if msg.Reply == "" {
		return nil
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func (w *NatsWorker) parseAndValidateEvent(msg *nats.Msg) (*events.TextProcessedEvent, error) {
	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.TextKey == "" {
		return nil, ErrTextKeyEmpty
	}

	return &event, nil
}
