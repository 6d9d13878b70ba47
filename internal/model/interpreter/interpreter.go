// Package interpreter runs wake-word models on the TensorFlow Lite runtime.
// Importing it registers the tflite-sigmoid and tflite-softmax strategies
// with the model package.
package interpreter

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates/xnnpack"

	"github.com/jupiter-voice/jupiter/internal/errors"
	"github.com/jupiter-voice/jupiter/internal/features"
	"github.com/jupiter-voice/jupiter/internal/logger"
	"github.com/jupiter-voice/jupiter/internal/model"
)

const component = "model"

func init() {
	model.Register(model.Strategy{Name: model.ArchTFLiteSigmoid, Load: loadSigmoid})
	model.Register(model.Strategy{Name: model.ArchTFLiteSoftmax, Load: loadSoftmax})
}

func loadSigmoid(data []byte, opts model.Options) (model.Scorer, error) {
	return newScorer(data, opts, model.ArchTFLiteSigmoid, 1)
}

func loadSoftmax(data []byte, opts model.Options) (model.Scorer, error) {
	return newScorer(data, opts, model.ArchTFLiteSoftmax, 2)
}

// Scorer is a TFLite interpreter bound to one model. Predict calls are
// serialized.
type Scorer struct {
	mu            sync.Mutex
	model         *tflite.Model
	interp        *tflite.Interpreter
	arch          model.Architecture
	inputLen      int
	probabilities bool
}

func determineThreadCount(configured int) int {
	if configured > 0 {
		return min(configured, runtime.NumCPU())
	}
	return max(1, runtime.NumCPU()/2)
}

func newScorer(data []byte, opts model.Options, arch model.Architecture, outputs int) (*Scorer, error) {
	log := logger.Global().Module(component).Module("tflite")

	m := tflite.NewModel(data)
	if m == nil {
		return nil, fmt.Errorf("cannot load TensorFlow Lite model")
	}

	threads := determineThreadCount(opts.Threads)
	options := tflite.NewInterpreterOptions()
	if opts.XNNPACK {
		delegate := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(1, threads-1))}) //nolint:gosec // bounded by CPU count
		if delegate == nil {
			log.Warn("failed to create XNNPACK delegate, using default CPU kernels")
			options.SetNumThread(threads)
		} else {
			options.AddDelegate(delegate)
			options.SetNumThread(1)
		}
	} else {
		options.SetNumThread(threads)
	}
	options.SetErrorReporter(func(msg string, _ any) {
		log.Error("TFLite error", logger.String("message", msg))
	}, nil)

	interp := tflite.NewInterpreter(m, options)
	if interp == nil {
		return nil, fmt.Errorf("cannot create interpreter")
	}
	if status := interp.AllocateTensors(); status != tflite.OK {
		interp.Delete()
		return nil, fmt.Errorf("tensor allocation failed: %v", status)
	}

	input := interp.GetInputTensor(0)
	if input == nil {
		interp.Delete()
		return nil, fmt.Errorf("cannot get input tensor")
	}
	inputLen := len(input.Float32s())
	if inputLen == 0 {
		interp.Delete()
		return nil, fmt.Errorf("input tensor is not float32")
	}
	if want := opts.InputShape[0] * opts.InputShape[1] * opts.InputShape[2]; want > 0 && want != inputLen {
		interp.Delete()
		return nil, fmt.Errorf("input tensor holds %d values, features provide %d", inputLen, want)
	}

	output := interp.GetOutputTensor(0)
	if output == nil {
		interp.Delete()
		return nil, fmt.Errorf("cannot get output tensor")
	}
	if got := output.Dim(output.NumDims() - 1); got != outputs {
		interp.Delete()
		return nil, fmt.Errorf("output tensor has %d classes, %s expects %d", got, arch, outputs)
	}

	log.Debug("interpreter ready",
		logger.String("architecture", string(arch)),
		logger.Int("threads", threads),
		logger.Int("input_len", inputLen))

	return &Scorer{
		model:         m,
		interp:        interp,
		arch:          arch,
		inputLen:      inputLen,
		probabilities: opts.Probabilities,
	}, nil
}

// Architecture reports which strategy built the scorer.
func (s *Scorer) Architecture() model.Architecture {
	return s.arch
}

// Predict runs one inference and returns the wake-word probability.
func (s *Scorer) Predict(t *features.Tensor) (float64, error) {
	if t == nil || len(t.Data) != s.inputLen {
		got := 0
		if t != nil {
			got = len(t.Data)
		}
		return 0, errors.Newf("feature tensor holds %d values, model expects %d", got, s.inputLen).
			Component(component).
			Category(errors.CategoryInference).
			Build()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.interp == nil {
		return 0, errors.Newf("model is closed").
			Component(component).
			Category(errors.CategoryState).
			Build()
	}

	input := s.interp.GetInputTensor(0)
	if input == nil {
		return 0, fmt.Errorf("cannot get input tensor")
	}
	copy(input.Float32s(), t.Data)

	if status := s.interp.Invoke(); status != tflite.OK {
		return 0, errors.Newf("tensor invoke failed: %v", status).
			Component(component).
			Category(errors.CategoryInference).
			Build()
	}

	out := s.interp.GetOutputTensor(0).Float32s()
	if len(out) == 0 {
		return 0, fmt.Errorf("empty output tensor")
	}

	return model.Clamp01(s.score(out)), nil
}

func (s *Scorer) score(out []float32) float64 {
	switch s.arch {
	case model.ArchTFLiteSoftmax:
		if s.probabilities {
			return float64(out[1])
		}
		return model.Softmax(out[:2], 1)
	default:
		if s.probabilities {
			return float64(out[0])
		}
		return model.Sigmoid(float64(out[0]))
	}
}

// Close releases the interpreter. It is safe to call more than once.
func (s *Scorer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.interp != nil {
		s.interp.Delete()
		s.interp = nil
		s.model = nil
	}
	return nil
}

var _ model.Scorer = (*Scorer)(nil)
