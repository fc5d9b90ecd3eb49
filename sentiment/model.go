package sentiment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"log/slog"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
)

// HugotConfig configures the ONNX smart tier.
type HugotConfig struct {
	// ModelsDir is where model files live (and are downloaded to).
	ModelsDir string
	// ModelName is the hugging-face model id, also reported as the result's
	// model version.
	ModelName string
	// Download fetches the model on first use when it is not already on
	// disk. Off by default so air-gapped deployments fail the probe fast.
	Download bool
}

// DefaultHugotConfig returns the default smart tier configuration.
func DefaultHugotConfig() HugotConfig {
	return HugotConfig{
		ModelsDir: "./models",
		ModelName: "KnightsAnalytics/distilbert-base-uncased-finetuned-sst-2-english",
	}
}

// HugotClassifier runs a text-classification pipeline on an ONNX runtime
// session. Loading is lazy and probed exactly once per process lifetime; a
// failed probe marks the tier unavailable without ever surfacing an error to
// callers.
type HugotClassifier struct {
	config HugotConfig

	once     sync.Once
	session  *hugot.Session
	pipeline *pipelines.TextClassificationPipeline
	loadErr  error
}

// NewHugotClassifier creates the classifier without touching the model yet.
func NewHugotClassifier(config HugotConfig) *HugotClassifier {
	if config.ModelsDir == "" {
		config.ModelsDir = DefaultHugotConfig().ModelsDir
	}
	if config.ModelName == "" {
		config.ModelName = DefaultHugotConfig().ModelName
	}
	return &HugotClassifier{config: config}
}

// Ready probes the model once and reports whether the tier is usable.
func (h *HugotClassifier) Ready() bool {
	h.once.Do(h.load)
	return h.loadErr == nil
}

// Version names the loaded model.
func (h *HugotClassifier) Version() string {
	return h.config.ModelName
}

func (h *HugotClassifier) load() {
	modelPath := filepath.Join(h.config.ModelsDir, filepath.Base(h.config.ModelName))

	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		if !h.config.Download {
			h.loadErr = fmt.Errorf("model %s not present at %s", h.config.ModelName, modelPath)
			slog.Info("smart sentiment tier unavailable",
				slog.String("reason", h.loadErr.Error()))
			return
		}

		slog.Info("downloading sentiment model",
			slog.String("model", h.config.ModelName),
			slog.String("dir", h.config.ModelsDir))
		downloaded, err := hugot.DownloadModel(h.config.ModelName, h.config.ModelsDir, hugot.NewDownloadOptions())
		if err != nil {
			h.loadErr = fmt.Errorf("download model: %w", err)
			slog.Warn("smart sentiment tier unavailable",
				slog.String("error", err.Error()))
			return
		}
		modelPath = downloaded
	}

	session, err := hugot.NewORTSession()
	if err != nil {
		h.loadErr = fmt.Errorf("onnx runtime session: %w", err)
		slog.Warn("smart sentiment tier unavailable",
			slog.String("error", err.Error()))
		return
	}

	pipeline, err := hugot.NewPipeline(session, hugot.TextClassificationConfig{
		ModelPath: modelPath,
		Name:      "sentimentClassificationPipeline",
	})
	if err != nil {
		session.Destroy()
		h.loadErr = fmt.Errorf("classification pipeline: %w", err)
		slog.Warn("smart sentiment tier unavailable",
			slog.String("error", err.Error()))
		return
	}

	h.session = session
	h.pipeline = pipeline
	slog.Info("smart sentiment tier ready", slog.String("model", h.config.ModelName))
}

// Classify runs the pipeline on text and returns the best label with its
// score.
func (h *HugotClassifier) Classify(ctx context.Context, text string) (string, float64, error) {
	if !h.Ready() {
		return "", 0, fmt.Errorf("model not loaded: %w", h.loadErr)
	}
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	output, err := h.pipeline.RunPipeline([]string{text})
	if err != nil {
		return "", 0, fmt.Errorf("run pipeline: %w", err)
	}

	raw := output.GetOutput()
	if len(raw) == 0 {
		return "", 0, fmt.Errorf("empty pipeline output")
	}
	predictions, ok := raw[0].([]pipelines.ClassificationOutput)
	if !ok || len(predictions) == 0 {
		return "", 0, fmt.Errorf("unexpected pipeline output shape %T", raw[0])
	}

	best := predictions[0]
	for _, p := range predictions[1:] {
		if p.Score > best.Score {
			best = p
		}
	}

	return best.Label, float64(best.Score), nil
}

// Close tears down the runtime session.
func (h *HugotClassifier) Close() error {
	if h.session != nil {
		return h.session.Destroy()
	}
	return nil
}
