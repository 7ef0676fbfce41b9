package layer

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/FlavioCFOliveira/normconv/internal/activations"
	"github.com/FlavioCFOliveira/normconv/internal/tensor"
)

// ConvConfig is the fixed geometry of a convolutional layer.
type ConvConfig struct {
	InputChannels  int
	InputWidth     int
	InputHeight    int
	OutputChannels int
	FilterSize     int
	Stride         int
	Padding        int
}

// ConvParams holds the persistent state of a Conv layer as flat buffers.
// Filters are row-major [outputChannels, inputChannels, filterSize, filterSize].
type ConvParams struct {
	Filters []float64
	Bias    []float64
}

// OutputSize returns (in + 2*padding - filterSize)/stride + 1, or ErrGeometry
// when the windows do not tile the padded input exactly.
func OutputSize(in, filterSize, stride, padding int) (int, error) {
	if in <= 0 || filterSize <= 0 || stride <= 0 || padding < 0 {
		return 0, fmt.Errorf("%w: in=%d filter=%d stride=%d padding=%d", ErrGeometry, in, filterSize, stride, padding)
	}
	span := in + 2*padding - filterSize
	if span < 0 {
		return 0, fmt.Errorf("%w: filter %d larger than padded input %d", ErrGeometry, filterSize, in+2*padding)
	}
	if span%stride != 0 {
		return 0, fmt.Errorf("%w: (%d + 2*%d - %d) not divisible by stride %d", ErrGeometry, in, padding, filterSize, stride)
	}
	return span/stride + 1, nil
}

// Conv is a 2D convolutional layer with per-channel bias and ReLU.
//
// Each batch row holds one sample flattened as [channel][row][col]. The output
// uses the same layout, so it can be fed to a Dense layer directly.
type Conv struct {
	outputChannels int
	stride         int
	filterSize     int
	padding        int
	inputChannels  int
	inputWidth     int
	inputHeight    int

	outputWidth  int
	outputHeight int
	paddedWidth  int
	paddedHeight int

	filters *tensor.Matrix // [outputChannels, inputChannels*filterSize*filterSize]
	bias    *tensor.Matrix // [1, outputChannels]

	// Owned copies from the last forward pass.
	input  *tensor.Matrix // padded
	output *tensor.Matrix // after bias and ReLU

	frozen bool
}

// NewConv creates a convolutional layer with randomized filters and zero bias.
func NewConv(cfg ConvConfig, rng *rand.Rand) (*Conv, error) {
	c, err := newConv(cfg)
	if err != nil {
		return nil, err
	}
	// He initialization (better for ReLU)
	fanIn := c.inputChannels * c.filterSize * c.filterSize
	c.filters.Randomize(rng, math.Sqrt(2.0/float64(fanIn)))
	return c, nil
}

// NewConvFromParams restores a convolutional layer from saved parameters.
func NewConvFromParams(cfg ConvConfig, p ConvParams) (*Conv, error) {
	c, err := newConv(cfg)
	if err != nil {
		return nil, err
	}
	if len(p.Filters) != c.filters.Len() {
		return nil, fmt.Errorf("%w: filters have %d values, want %d", ErrParamLength, len(p.Filters), c.filters.Len())
	}
	if len(p.Bias) != c.outputChannels {
		return nil, fmt.Errorf("%w: bias has %d values, want %d", ErrParamLength, len(p.Bias), c.outputChannels)
	}
	copy(c.filters.RawData(), p.Filters)
	copy(c.bias.RawData(), p.Bias)
	return c, nil
}

func newConv(cfg ConvConfig) (*Conv, error) {
	if cfg.InputChannels <= 0 || cfg.OutputChannels <= 0 {
		return nil, fmt.Errorf("%w: channels in=%d out=%d", ErrGeometry, cfg.InputChannels, cfg.OutputChannels)
	}
	outW, err := OutputSize(cfg.InputWidth, cfg.FilterSize, cfg.Stride, cfg.Padding)
	if err != nil {
		return nil, fmt.Errorf("width: %w", err)
	}
	outH, err := OutputSize(cfg.InputHeight, cfg.FilterSize, cfg.Stride, cfg.Padding)
	if err != nil {
		return nil, fmt.Errorf("height: %w", err)
	}

	return &Conv{
		outputChannels: cfg.OutputChannels,
		stride:         cfg.Stride,
		filterSize:     cfg.FilterSize,
		padding:        cfg.Padding,
		inputChannels:  cfg.InputChannels,
		inputWidth:     cfg.InputWidth,
		inputHeight:    cfg.InputHeight,
		outputWidth:    outW,
		outputHeight:   outH,
		paddedWidth:    cfg.InputWidth + 2*cfg.Padding,
		paddedHeight:   cfg.InputHeight + 2*cfg.Padding,
		filters:        tensor.New(cfg.OutputChannels, cfg.InputChannels*cfg.FilterSize*cfg.FilterSize),
		bias:           tensor.New(1, cfg.OutputChannels),
	}, nil
}

// FeedForward convolves every sample of rawInput, adds the channel bias,
// applies ReLU and returns a copy of the result.
func (c *Conv) FeedForward(rawInput *tensor.Matrix) *tensor.Matrix {
	if rawInput.Cols() != c.InSize() {
		panic(fmt.Sprintf("Conv: input has %d columns, want %d (%dx%dx%d)",
			rawInput.Cols(), c.InSize(), c.inputChannels, c.inputHeight, c.inputWidth))
	}

	c.input = c.pad(rawInput)
	batch := rawInput.Rows()
	outArea := c.outputWidth * c.outputHeight
	out := tensor.New(batch, c.OutSize())

	fs := c.filterSize
	planeIn := c.paddedWidth * c.paddedHeight
	for b := 0; b < batch; b++ {
		in := c.input.Row(b)
		row := out.Row(b)
		for oc := 0; oc < c.outputChannels; oc++ {
			filter := c.filters.Row(oc)
			plane := row[oc*outArea : (oc+1)*outArea]
			for oy := 0; oy < c.outputHeight; oy++ {
				for ox := 0; ox < c.outputWidth; ox++ {
					sum := 0.0
					for ic := 0; ic < c.inputChannels; ic++ {
						for ky := 0; ky < fs; ky++ {
							start := ic*planeIn + (oy*c.stride+ky)*c.paddedWidth + ox*c.stride
							fOff := (ic*fs + ky) * fs
							sum += floats.Dot(filter[fOff:fOff+fs], in[start:start+fs])
						}
					}
					plane[oy*c.outputWidth+ox] = sum
				}
			}
			c.biasAndReLU(plane, c.bias.At(0, oc))
		}
	}

	c.output = out
	return out.Clone()
}

// biasAndReLU adds the channel bias to one output plane and clamps it at zero, in place.
func (c *Conv) biasAndReLU(conv []float64, bias float64) {
	floats.AddConst(bias, conv)
	activations.ApplyReLU(conv)
}

// pad copies the batch into a zero-bordered [channel][paddedH][paddedW] layout.
func (c *Conv) pad(raw *tensor.Matrix) *tensor.Matrix {
	batch := raw.Rows()
	padded := tensor.New(batch, c.inputChannels*c.paddedWidth*c.paddedHeight)
	planeIn := c.inputWidth * c.inputHeight
	planePad := c.paddedWidth * c.paddedHeight
	for b := 0; b < batch; b++ {
		src := raw.Row(b)
		dst := padded.Row(b)
		for ic := 0; ic < c.inputChannels; ic++ {
			for y := 0; y < c.inputHeight; y++ {
				from := ic*planeIn + y*c.inputWidth
				to := ic*planePad + (y+c.padding)*c.paddedWidth + c.padding
				copy(dst[to:to+c.inputWidth], src[from:from+c.inputWidth])
			}
		}
	}
	return padded
}

// crop is the inverse of pad: it drops the border of a padded gradient.
func (c *Conv) crop(padded *tensor.Matrix) *tensor.Matrix {
	batch := padded.Rows()
	out := tensor.New(batch, c.InSize())
	planeIn := c.inputWidth * c.inputHeight
	planePad := c.paddedWidth * c.paddedHeight
	for b := 0; b < batch; b++ {
		src := padded.Row(b)
		dst := out.Row(b)
		for ic := 0; ic < c.inputChannels; ic++ {
			for y := 0; y < c.inputHeight; y++ {
				from := ic*planePad + (y+c.padding)*c.paddedWidth + c.padding
				to := ic*planeIn + y*c.inputWidth
				copy(dst[to:to+c.inputWidth], src[from:from+c.inputWidth])
			}
		}
	}
	return out
}

// BackPropagation takes the gradient of the loss with respect to the last output,
// updates filters and bias unless frozen, and returns the gradient with respect
// to the last (unpadded) input.
func (c *Conv) BackPropagation(dOut *tensor.Matrix, learningRate float64) *tensor.Matrix {
	if c.output == nil {
		panic("Conv: BackPropagation called before FeedForward")
	}
	if !dOut.SameShape(c.output) {
		panic(fmt.Sprintf("Conv: gradient is %dx%d, output is %dx%d",
			dOut.Rows(), dOut.Cols(), c.output.Rows(), c.output.Cols()))
	}

	batch := dOut.Rows()
	masked := dOut.Clone()
	for b := 0; b < batch; b++ {
		activations.MaskReLU(masked.Row(b), c.output.Row(b))
	}

	dFilters := tensor.New(c.filters.Dims())
	dBias := tensor.New(1, c.outputChannels)
	dPadded := tensor.New(c.input.Dims())

	fs := c.filterSize
	outArea := c.outputWidth * c.outputHeight
	planeIn := c.paddedWidth * c.paddedHeight
	db := dBias.RawData()
	for b := 0; b < batch; b++ {
		in := c.input.Row(b)
		dIn := dPadded.Row(b)
		grad := masked.Row(b)
		for oc := 0; oc < c.outputChannels; oc++ {
			filter := c.filters.Row(oc)
			dFilter := dFilters.Row(oc)
			for oy := 0; oy < c.outputHeight; oy++ {
				for ox := 0; ox < c.outputWidth; ox++ {
					g := grad[oc*outArea+oy*c.outputWidth+ox]
					if g == 0 {
						continue
					}
					db[oc] += g
					for ic := 0; ic < c.inputChannels; ic++ {
						for ky := 0; ky < fs; ky++ {
							start := ic*planeIn + (oy*c.stride+ky)*c.paddedWidth + ox*c.stride
							fOff := (ic*fs + ky) * fs
							floats.AddScaled(dFilter[fOff:fOff+fs], g, in[start:start+fs])
							floats.AddScaled(dIn[start:start+fs], g, filter[fOff:fOff+fs])
						}
					}
				}
			}
		}
	}

	dInput := c.crop(dPadded)
	c.updateWeights(dFilters, dBias, learningRate)
	return dInput
}

func (c *Conv) updateWeights(dWeights, dBias *tensor.Matrix, learningRate float64) {
	if c.frozen {
		return
	}
	floats.AddScaled(c.filters.RawData(), -learningRate, dWeights.RawData())
	floats.AddScaled(c.bias.RawData(), -learningRate, dBias.RawData())
}

// Filters returns a copy of the filter bank.
func (c *Conv) Filters() *tensor.Matrix { return c.filters.Clone() }

// Bias returns a copy of the per-channel bias.
func (c *Conv) Bias() *tensor.Matrix { return c.bias.Clone() }

// Input returns a copy of the padded input retained from the last forward pass.
func (c *Conv) Input() *tensor.Matrix { return cloneOrNil(c.input) }

// Output returns a copy of the last output.
func (c *Conv) Output() *tensor.Matrix { return cloneOrNil(c.output) }

// Params returns copies of filters and bias.
func (c *Conv) Params() ConvParams {
	return ConvParams{Filters: c.filters.Data(), Bias: c.bias.Data()}
}

// Config returns the layer geometry.
func (c *Conv) Config() ConvConfig {
	return ConvConfig{
		InputChannels:  c.inputChannels,
		InputWidth:     c.inputWidth,
		InputHeight:    c.inputHeight,
		OutputChannels: c.outputChannels,
		FilterSize:     c.filterSize,
		Stride:         c.stride,
		Padding:        c.padding,
	}
}

// OutputWidth returns the spatial width of each output channel.
func (c *Conv) OutputWidth() int { return c.outputWidth }

// OutputHeight returns the spatial height of each output channel.
func (c *Conv) OutputHeight() int { return c.outputHeight }

// InSize returns the flattened size of one input sample.
func (c *Conv) InSize() int { return c.inputChannels * c.inputWidth * c.inputHeight }

// OutSize returns the flattened size of one output sample.
func (c *Conv) OutSize() int { return c.outputChannels * c.outputWidth * c.outputHeight }

// SetFrozen toggles whether updates take effect.
func (c *Conv) SetFrozen(value bool) { c.frozen = value }

// Frozen reports whether updates are disabled.
func (c *Conv) Frozen() bool { return c.frozen }
