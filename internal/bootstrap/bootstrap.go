// Package bootstrap provides dependency initialization for the Maia Router node.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maauso/maiarouter-node/internal/audio"
	"github.com/maauso/maiarouter-node/internal/backend"
	"github.com/maauso/maiarouter-node/internal/chat"
	"github.com/maauso/maiarouter-node/internal/config"
	"github.com/maauso/maiarouter-node/internal/dispatch"
	"github.com/maauso/maiarouter-node/internal/gateway"
	"github.com/maauso/maiarouter-node/internal/image"
	"github.com/maauso/maiarouter-node/internal/maiarouter"
	"github.com/maauso/maiarouter-node/internal/storage"
	"github.com/maauso/maiarouter-node/internal/video"
)

// Resource and operation names exposed to the workflow host.
const (
	ResourceChat  = "chat"
	ResourceAudio = "audio"
	ResourceImage = "image"
	ResourceVideo = "video"
)

// Dependencies holds all initialized dependencies for the host adapters.
type Dependencies struct {
	API        *maiarouter.Client
	Dispatcher *dispatch.Dispatcher
	Storage    storage.Storage
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	fallback, err := cfg.FallbackFamily()
	if err != nil {
		return nil, err
	}

	gw := gateway.NewClient(gateway.WithLogger(logger))
	api, err := maiarouter.NewClient(gw, cfg.APIKey, maiarouter.WithBaseURL(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("create Maia Router client: %w", err)
	}

	store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Dependencies{
		API:        api,
		Dispatcher: NewDispatcher(api, fallback, cfg.VertexStorageURI, logger),
		Storage:    store,
	}, nil
}

// NewDispatcher registers every node operation bound to api.
func NewDispatcher(api *maiarouter.Client, fallback backend.Family, vertexStorageURI string, logger *slog.Logger) *dispatch.Dispatcher {
	d := dispatch.New(dispatch.WithLogger(logger))

	d.Register(ResourceChat, "messageModel", chat.NewMessageModel(api, logger))
	d.Register(ResourceAudio, "generateAudio", audio.NewSpeech(api, logger), "textToSpeech")
	d.Register(ResourceAudio, "transcribeAudio", audio.NewTranscribe(api, logger), "transcribe")
	d.Register(ResourceImage, "generateImage", image.NewGenerate(api, logger))
	d.Register(ResourceImage, "editImage", image.NewEdit(api, logger))

	controller := video.NewController(api,
		video.WithLogger(logger),
		video.WithRegistry(backend.NewRegistry(backend.WithFallback(fallback))),
		video.WithBackend(video.NewVertexBackend(api,
			video.WithStorageURI(vertexStorageURI),
			video.WithVertexLogger(logger),
		)),
	)
	d.Register(ResourceVideo, "generateVideo", controller, "textToVideo")

	return d
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Store, err := storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("output_dir", localStore.Dir()),
	)
	return localStore, nil
}
