package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// Options configure NewServer.
type Options struct {
	ModelPath    string
	MetadataPath string
	// LibraryPath points at the onnxruntime shared library. Empty uses the
	// platform default lookup.
	LibraryPath string
	Logger      *zap.Logger
}

// Server owns one ONNX Runtime session. The session is bound to a single pair
// of pre-allocated tensors, so runs are serialized by mu.
type Server struct {
	session      *ort.AdvancedSession
	Metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	mu           sync.Mutex
	log          *zap.Logger
}

func NewServer(opts Options) (*Server, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	if opts.LibraryPath != "" {
		ort.SetSharedLibraryPath(opts.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	metadata, err := loadMetadata(opts.MetadataPath)
	if err != nil {
		return nil, err
	}
	if err := completeMetadata(&metadata, opts.ModelPath); err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(opts.ModelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	log.Info("model loaded",
		zap.String("path", opts.ModelPath),
		zap.String("input", metadata.InputName),
		zap.Int64s("input_shape", metadata.InputShape),
		zap.String("output", metadata.OutputName),
		zap.Int64s("output_shape", metadata.OutputShape))

	return &Server{
		session:      session,
		Metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		log:          log,
	}, nil
}

func loadMetadata(path string) (Metadata, error) {
	var metadata Metadata
	if path == "" {
		return metadata, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return metadata, nil
	}
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata: %w", err)
	}
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return metadata, nil
}

// completeMetadata fills whatever the metadata file left out by asking the
// model for its first input and output.
func completeMetadata(m *Metadata, modelPath string) error {
	if m.InputName != "" && m.OutputName != "" && len(m.InputShape) > 0 && len(m.OutputShape) > 0 {
		return nil
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return fmt.Errorf("failed to inspect model: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return fmt.Errorf("model %s has no inputs or outputs", modelPath)
	}

	if m.InputName == "" {
		m.InputName = inputs[0].Name
	}
	if m.OutputName == "" {
		m.OutputName = outputs[0].Name
	}
	if len(m.InputShape) == 0 {
		m.InputShape = concreteShape(inputs[0].Dimensions)
	}
	if len(m.OutputShape) == 0 {
		m.OutputShape = concreteShape(outputs[0].Dimensions)
	}
	return nil
}

// concreteShape replaces symbolic (negative) dimensions with 1. Only batch
// dimensions are expected to be symbolic.
func concreteShape(dims []int64) []int64 {
	shape := make([]int64, len(dims))
	for i, d := range dims {
		if d < 1 {
			d = 1
		}
		shape[i] = d
	}
	return shape
}

// Classify runs one forward pass. It returns early with ctx's error if ctx
// ends first. A run still waiting for the session when ctx ends is skipped;
// one already started cannot be interrupted and finishes in the background.
func (s *Server) Classify(ctx context.Context, in Tensor) (Tensor, error) {
	if err := in.Validate(); err != nil {
		return Tensor{}, fmt.Errorf("invalid input: %w", err)
	}
	if want := len(s.inputTensor.GetData()); len(in.Data) != want {
		return Tensor{}, fmt.Errorf("expected %d input values, got %d", want, len(in.Data))
	}

	type result struct {
		out Tensor
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := s.run(ctx, in.Data)
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		return Tensor{}, fmt.Errorf("inference aborted: %w", ctx.Err())
	}
}

func (s *Server) run(ctx context.Context, input []float32) (Tensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Tensor{}, fmt.Errorf("inference aborted: %w", err)
	}

	copy(s.inputTensor.GetData(), input)

	if err := s.session.Run(); err != nil {
		return Tensor{}, fmt.Errorf("inference failed: %w", err)
	}

	out := NewTensor(s.Metadata.OutputShape...)
	copy(out.Data, s.outputTensor.GetData())
	return out, nil
}

func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
	ort.DestroyEnvironment()
}
