package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/zoraidacallejas/talk-to-your-assistant/domain"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/entities"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/repositories"
)

const (
	defaultSampleRate = 16000
	defaultEncoding   = "LINEAR16"
	eventBuffer       = 16
)

var (
	// ErrNotListening is returned when audio arrives outside a listen operation
	ErrNotListening = errors.New("recognizer is not listening")
	// ErrAlreadyListening is returned when a second listen operation is requested
	ErrAlreadyListening = errors.New("recognizer is already listening")
)

// GoogleConfig configures the Google streaming recognizer
type GoogleConfig struct {
	// Languages are the BCP-47 tags offered to the session controller
	Languages  []string
	Preference string
	SampleRate int
	Encoding   string
}

// recognizeStream is the part of the gRPC stream used by the recognizer
type recognizeStream interface {
	Send(*speechpb.StreamingRecognizeRequest) error
	Recv() (*speechpb.StreamingRecognizeResponse, error)
	CloseSend() error
}

type streamOpener func(ctx context.Context) (recognizeStream, error)

// listenOp is one outstanding listen operation
type listenOp struct {
	stream  recognizeStream
	cancel  context.CancelFunc
	stopped bool
	closed  bool
}

// GoogleRecognizer implements RecognitionEngine and AudioInput on top of
// Google Cloud Speech streaming recognition. Audio is pushed by the device
// through Stream and EndOfSpeech.
type GoogleRecognizer struct {
	open       streamOpener
	client     *speech.Client
	languages  []string
	preference string
	sampleRate int
	encoding   speechpb.RecognitionConfig_AudioEncoding
	logger     *zap.Logger

	mu      sync.Mutex
	current *listenOp
	events  chan repositories.RecognitionEvent
}

// NewGoogleRecognizer creates a Speech client using application default credentials
func NewGoogleRecognizer(ctx context.Context, config GoogleConfig, logger *zap.Logger) (*GoogleRecognizer, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	open := func(ctx context.Context) (recognizeStream, error) {
		return client.StreamingRecognize(ctx)
	}
	r, err := newGoogleRecognizer(open, config, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	r.client = client
	return r, nil
}

func newGoogleRecognizer(open streamOpener, config GoogleConfig, logger *zap.Logger) (*GoogleRecognizer, error) {
	encodingName := config.Encoding
	if encodingName == "" {
		encodingName = defaultEncoding
		logger.Info("Using default encoding", zap.String("encoding", encodingName))
	}
	encoding, err := getAudioEncoding(encodingName)
	if err != nil {
		return nil, err
	}

	sampleRate := config.SampleRate
	if sampleRate == 0 {
		sampleRate = defaultSampleRate
		logger.Info("Using default sample rate", zap.Int("sampleRate", sampleRate))
	}

	preference := config.Preference
	if preference == "" && len(config.Languages) > 0 {
		preference = config.Languages[0]
	}

	return &GoogleRecognizer{
		open:       open,
		languages:  append([]string(nil), config.Languages...),
		preference: preference,
		sampleRate: sampleRate,
		encoding:   encoding,
		logger:     logger,
		events:     make(chan repositories.RecognitionEvent, eventBuffer),
	}, nil
}

// LanguageDetails returns the configured recognition languages
func (g *GoogleRecognizer) LanguageDetails(ctx context.Context) (repositories.LanguageDetails, error) {
	return repositories.LanguageDetails{
		Preference: g.preference,
		Supported:  append([]string(nil), g.languages...),
	}, nil
}

// StartListening opens a recognition stream and sends its configuration
func (g *GoogleRecognizer) StartListening(ctx context.Context, config repositories.ListenConfig) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current != nil {
		return ErrAlreadyListening
	}

	listenCtx, cancel := context.WithCancel(ctx)
	stream, err := g.open(listenCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create streaming recognize: %w", err)
	}

	recognitionConfig := &speechpb.RecognitionConfig{
		Encoding:        g.encoding,
		SampleRateHertz: int32(g.sampleRate),
		LanguageCode:    config.Language,
		MaxAlternatives: int32(config.MaxResults),
		Model:           recognitionModel(config.Model),
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:          recognitionConfig,
				InterimResults:  false,
				SingleUtterance: true,
			},
		},
	}); err != nil {
		stream.CloseSend()
		cancel()
		return fmt.Errorf("failed to send streaming config: %w", err)
	}

	op := &listenOp{stream: stream, cancel: cancel}
	g.current = op

	g.logger.Info("Listening",
		zap.String("language", config.Language),
		zap.String("model", recognitionConfig.Model),
		zap.Int("maxResults", config.MaxResults))

	g.emit(repositories.RecognitionEvent{Kind: repositories.RecognitionReady})
	go g.receiveResults(op)
	return nil
}

// StopListening abandons the current listen operation without emitting events
func (g *GoogleRecognizer) StopListening() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current == nil {
		return nil
	}
	g.current.stopped = true
	g.current.cancel()
	g.current = nil
	return nil
}

// Events delivers ready, result and error events
func (g *GoogleRecognizer) Events() <-chan repositories.RecognitionEvent {
	return g.events
}

// Stream sends captured audio to the recognizer
func (g *GoogleRecognizer) Stream(data []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current == nil || g.current.closed {
		return ErrNotListening
	}
	if len(data) == 0 {
		return nil
	}

	if err := g.current.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: data,
		},
	}); err != nil {
		return fmt.Errorf("failed to send audio data: %w", err)
	}
	return nil
}

// EndOfSpeech closes the audio side of the stream, results follow on Events
func (g *GoogleRecognizer) EndOfSpeech() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current == nil {
		return ErrNotListening
	}
	return g.closeSendLocked(g.current)
}

// InputLost abandons the current listen operation and reports a speech timeout
func (g *GoogleRecognizer) InputLost() error {
	g.mu.Lock()
	op := g.current
	if op == nil {
		g.mu.Unlock()
		return nil
	}
	op.stopped = true
	g.current = nil
	g.mu.Unlock()

	op.cancel()
	g.emit(repositories.RecognitionEvent{Kind: repositories.RecognitionError, Code: domain.RecognitionErrorSpeechTimeout})
	return nil
}

// Close releases the Speech client
func (g *GoogleRecognizer) Close() error {
	g.StopListening()
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GoogleRecognizer) closeSendLocked(op *listenOp) error {
	if op.closed {
		return nil
	}
	op.closed = true
	if err := op.stream.CloseSend(); err != nil {
		return fmt.Errorf("failed to close send stream: %w", err)
	}
	return nil
}

func (g *GoogleRecognizer) receiveResults(op *listenOp) {
	var hypotheses []entities.Hypothesis

	for {
		resp, err := op.stream.Recv()
		if err == io.EOF {
			if len(hypotheses) == 0 {
				g.finish(op, repositories.RecognitionEvent{Kind: repositories.RecognitionError, Code: domain.RecognitionErrorNoMatch})
				return
			}
			g.finish(op, repositories.RecognitionEvent{Kind: repositories.RecognitionResult, Hypotheses: hypotheses})
			return
		}
		if err != nil {
			g.logger.Warn("Recognition stream failed", zap.Error(err))
			g.finish(op, repositories.RecognitionEvent{Kind: repositories.RecognitionError, Code: errorCode(err)})
			return
		}

		if resp.Error != nil && resp.Error.Code != int32(codes.OK) {
			g.logger.Warn("Recognition returned an error", zap.String("message", resp.Error.Message))
			g.finish(op, repositories.RecognitionEvent{
				Kind: repositories.RecognitionError,
				Code: codeFor(codes.Code(resp.Error.Code)),
			})
			return
		}

		if resp.SpeechEventType == speechpb.StreamingRecognizeResponse_END_OF_SINGLE_UTTERANCE {
			g.mu.Lock()
			g.closeSendLocked(op)
			g.mu.Unlock()
		}

		for _, result := range resp.Results {
			if !result.IsFinal {
				continue
			}
			for _, alt := range result.Alternatives {
				h := entities.Hypothesis{Text: alt.Transcript}
				if alt.Confidence > 0 {
					confidence := alt.Confidence
					h.Confidence = &confidence
				}
				hypotheses = append(hypotheses, h)
			}
		}
	}
}

// finish emits the final event of a listen operation unless it was stopped
func (g *GoogleRecognizer) finish(op *listenOp, ev repositories.RecognitionEvent) {
	g.mu.Lock()
	stopped := op.stopped
	if g.current == op {
		g.current = nil
	}
	g.mu.Unlock()

	op.cancel()
	if stopped {
		return
	}
	g.emit(ev)
}

func (g *GoogleRecognizer) emit(ev repositories.RecognitionEvent) {
	select {
	case g.events <- ev:
	default:
		g.logger.Warn("Recognition event channel full, dropping event", zap.String("kind", string(ev.Kind)))
	}
}

func recognitionModel(model repositories.LanguageModel) string {
	switch model {
	case repositories.WebSearchModel:
		return "command_and_search"
	default:
		return "default"
	}
}

// errorCode maps a stream failure to a recognition error code
func errorCode(err error) domain.RecognitionErrorCode {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.RecognitionErrorNetworkTimeout
	}
	if errors.Is(err, context.Canceled) {
		return domain.RecognitionErrorClient
	}
	st, ok := status.FromError(err)
	if !ok {
		return domain.RecognitionErrorNetwork
	}
	return codeFor(st.Code())
}

func codeFor(code codes.Code) domain.RecognitionErrorCode {
	switch code {
	case codes.DeadlineExceeded:
		return domain.RecognitionErrorNetworkTimeout
	case codes.Unavailable:
		return domain.RecognitionErrorNetwork
	case codes.InvalidArgument:
		return domain.RecognitionErrorAudio
	case codes.OutOfRange:
		return domain.RecognitionErrorSpeechTimeout
	case codes.ResourceExhausted, codes.Aborted:
		return domain.RecognitionErrorBusy
	case codes.PermissionDenied, codes.Unauthenticated:
		return domain.RecognitionErrorPermissions
	case codes.Internal, codes.Unknown, codes.DataLoss:
		return domain.RecognitionErrorServer
	default:
		return domain.RecognitionErrorClient
	}
}

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "AMR":
		return speechpb.RecognitionConfig_AMR, nil
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

var (
	_ repositories.RecognitionEngine = (*GoogleRecognizer)(nil)
	_ repositories.AudioInput        = (*GoogleRecognizer)(nil)
)
