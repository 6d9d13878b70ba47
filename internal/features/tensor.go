package features

// Tensor is a dense row-major float32 array with a leading batch dimension:
// [1, coefficients, frames].
type Tensor struct {
	Data  []float32
	Shape [3]int
}

// NewTensor allocates a zeroed tensor of the given shape.
func NewTensor(shape [3]int) *Tensor {
	return &Tensor{
		Data:  make([]float32, shape[0]*shape[1]*shape[2]),
		Shape: shape,
	}
}

// At returns the value at coefficient row i, frame column j of batch 0.
func (t *Tensor) At(i, j int) float32 {
	return t.Data[i*t.Shape[2]+j]
}

// Row returns coefficient row i of batch 0. The slice aliases Data.
func (t *Tensor) Row(i int) []float32 {
	cols := t.Shape[2]
	return t.Data[i*cols : (i+1)*cols]
}
