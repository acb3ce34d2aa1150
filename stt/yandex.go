package stt

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"

	speechkit "github.com/yandex-cloud/go-genproto/yandex/cloud/ai/stt/v3"
)

const defaultYandexEndpoint = "stt.api.cloud.yandex.net:443"

// YandexConfig configures the SpeechKit v3 client.
type YandexConfig struct {
	Endpoint string
	IamToken string
	FolderID string
}

// YandexClient speaks the SpeechKit v3 streaming recognition API over
// gRPC. One client is reused across sequential streams.
type YandexClient struct {
	client   speechkit.RecognizerClient
	conn     *grpc.ClientConn
	iamToken string
	folderID string
}

// NewYandexClient dials the SpeechKit endpoint over TLS.
func NewYandexClient(config YandexConfig) (*YandexClient, error) {
	if config.Endpoint == "" {
		config.Endpoint = defaultYandexEndpoint
	}

	tlsConfig := &tls.Config{}
	conn, err := grpc.Dial(config.Endpoint, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Yandex STT: %w", err)
	}

	return &YandexClient{
		client:   speechkit.NewRecognizerClient(conn),
		conn:     conn,
		iamToken: config.IamToken,
		folderID: config.FolderID,
	}, nil
}

func (c *YandexClient) Close() error {
	return c.conn.Close()
}

// Open returns a stream bound to this client. The underlying gRPC call
// is created lazily by SendConfig, since the session identifier rides
// in the call metadata.
func (c *YandexClient) Open(ctx context.Context) (Stream, error) {
	return &yandexStream{client: c, ctx: ctx}, nil
}

type yandexStream struct {
	client *YandexClient
	ctx    context.Context

	stream        speechkit.Recognizer_RecognizeStreamingClient
	closeSendOnce sync.Once
}

func (s *yandexStream) SendConfig(config StreamConfig) error {
	md := metadata.Pairs(
		"authorization", "Bearer "+s.client.iamToken,
		"x-folder-id", s.client.folderID,
		"x-client-request-id", config.SessionID,
	)
	ctx := metadata.NewOutgoingContext(s.ctx, md)

	stream, err := s.client.client.RecognizeStreaming(ctx)
	if err != nil {
		return fmt.Errorf("failed to create streaming client: %w", err)
	}
	s.stream = stream

	if err := stream.Send(buildSessionOptions(config)); err != nil {
		return fmt.Errorf("failed to send session options: %w", err)
	}
	return nil
}

func (s *yandexStream) SendAudio(frame []byte) error {
	request := &speechkit.StreamingRequest{
		Event: &speechkit.StreamingRequest_Chunk{
			Chunk: &speechkit.AudioChunk{
				Data: frame,
			},
		},
	}
	if err := s.stream.Send(request); err != nil {
		return fmt.Errorf("failed to send audio chunk: %w", err)
	}
	return nil
}

func (s *yandexStream) Recv() (*Response, error) {
	resp, err := s.stream.Recv()
	if err != nil {
		return nil, err
	}
	return mapYandexResponse(resp), nil
}

func (s *yandexStream) CloseSend() error {
	var err error
	s.closeSendOnce.Do(func() {
		if s.stream != nil {
			err = s.stream.CloseSend()
		}
	})
	return err
}

func buildSessionOptions(config StreamConfig) *speechkit.StreamingRequest {
	options := &speechkit.StreamingOptions{
		RecognitionModel: &speechkit.RecognitionModelOptions{
			AudioFormat: &speechkit.AudioFormatOptions{
				AudioFormat: &speechkit.AudioFormatOptions_RawAudio{
					RawAudio: &speechkit.RawAudio{
						AudioEncoding:     speechkit.RawAudio_LINEAR16_PCM,
						SampleRateHertz:   int64(config.SampleRateHertz),
						AudioChannelCount: 1,
					},
				},
			},
			TextNormalization: &speechkit.TextNormalizationOptions{
				TextNormalization: speechkit.TextNormalizationOptions_TEXT_NORMALIZATION_ENABLED,
				ProfanityFilter:   false,
				LiteratureText:    false,
			},
			LanguageRestriction: &speechkit.LanguageRestrictionOptions{
				RestrictionType: speechkit.LanguageRestrictionOptions_WHITELIST,
				LanguageCode:    []string{config.Language},
			},
			AudioProcessingType: speechkit.RecognitionModelOptions_REAL_TIME,
		},
	}

	if config.SingleUtterance {
		options.EouClassifier = &speechkit.EouClassifierOptions{
			Classifier: &speechkit.EouClassifierOptions_DefaultClassifier{
				DefaultClassifier: &speechkit.DefaultEouClassifier{
					Type: speechkit.DefaultEouClassifier_DEFAULT,
				},
			},
		}
	}

	if len(config.Classifiers) > 0 {
		classifiers := make([]*speechkit.RecognitionClassifier, 0, len(config.Classifiers))
		for _, name := range config.Classifiers {
			classifiers = append(classifiers, &speechkit.RecognitionClassifier{
				Classifier: name,
				Triggers:   []speechkit.RecognitionClassifier_TriggerType{speechkit.RecognitionClassifier_ON_UTTERANCE},
			})
		}
		options.RecognitionClassifier = &speechkit.RecognitionClassifierOptions{
			Classifiers: classifiers,
		}
	}

	return &speechkit.StreamingRequest{
		Event: &speechkit.StreamingRequest_SessionOptions{
			SessionOptions: options,
		},
	}
}

func mapYandexResponse(resp *speechkit.StreamingResponse) *Response {
	mapped := &Response{
		SessionUUID: resp.GetSessionUuid().GetUuid(),
	}

	switch {
	case resp.GetPartial() != nil:
		mapped.Transcript = firstAlternative(resp.GetPartial().GetAlternatives())
	case resp.GetFinal() != nil:
		mapped.Transcript = firstAlternative(resp.GetFinal().GetAlternatives())
		mapped.Final = true
	case resp.GetFinalRefinement() != nil:
		mapped.Transcript = firstAlternative(resp.GetFinalRefinement().GetNormalizedText().GetAlternatives())
		mapped.Final = true
	case resp.GetEouUpdate() != nil:
		mapped.EndOfUtterance = true
	case resp.GetClassifierUpdate() != nil:
		mapped.Intent = classifierIntent(resp.GetClassifierUpdate().GetClassifierResult())
	}

	return mapped
}

func firstAlternative(alternatives []*speechkit.Alternative) string {
	for _, alternative := range alternatives {
		if text := alternative.GetText(); text != "" {
			return text
		}
	}
	return ""
}

// classifierIntent picks the highest-confidence label reported by the
// classifier, falling back to the classifier's own name.
func classifierIntent(result *speechkit.RecognitionClassifierResult) string {
	var best string
	var bestConfidence float64
	for _, label := range result.GetLabels() {
		if label.GetLabel() != "" && label.GetConfidence() >= bestConfidence {
			best = label.GetLabel()
			bestConfidence = label.GetConfidence()
		}
	}
	if best != "" {
		return best
	}
	return result.GetClassifier()
}
