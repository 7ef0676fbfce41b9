package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/FlavioCFOliveira/normconv/internal/layer"
	"github.com/FlavioCFOliveira/normconv/internal/loss"
	"github.com/FlavioCFOliveira/normconv/internal/net"
	"github.com/FlavioCFOliveira/normconv/internal/opt"
	"github.com/FlavioCFOliveira/normconv/internal/tensor"
)

const imageSize = 8

// CNN example: a convolutional front followed by batch-normalized dense
// layers, classifying synthetic images of horizontal and vertical bars.
func main() {
	epochs := flag.Int("epochs", 20, "training epochs")
	batch := flag.Int("batch", 16, "mini-batch size")
	lr := flag.Float64("lr", 0.02, "learning rate")
	filters := flag.Int("filters", 4, "convolution output channels")
	filterSize := flag.Int("filter-size", 3, "square filter size")
	samples := flag.Int("samples", 256, "number of synthetic images")
	seed := flag.Int64("seed", 42, "random seed")
	save := flag.String("save", "", "save the trained model to this file")
	flag.Parse()

	data := bars(*samples, *seed)
	train, test := data.Split(0.8)

	cfg := layer.ConvConfig{
		InputChannels:  1,
		InputWidth:     imageSize,
		InputHeight:    imageSize,
		OutputChannels: *filters,
		FilterSize:     *filterSize,
		Stride:         1,
		Padding:        (*filterSize - 1) / 2,
	}

	sgd := &opt.SGD{LearningRate: *lr}
	model, err := net.NewCNN(cfg, []int{16, 2}, loss.SoftmaxCrossEntropy{}, sgd, tensor.NewRNG(*seed))
	if err != nil {
		log.Fatalf("failed to build model: %v", err)
	}
	model.Summary(os.Stdout)

	fitCfg := net.Config{Epochs: *epochs, BatchSize: *batch, Shuffle: true, Seed: *seed}
	_, err = model.Fit(train.Samples, train.Labels, fitCfg,
		net.Logger{Interval: 1},
		net.NewSchedulerCallback(opt.NewExponentialLR(sgd, 0.95)),
	)
	if err != nil {
		log.Fatalf("training failed: %v", err)
	}

	fmt.Printf("\nTest loss: %.4f, accuracy: %.2f%%\n",
		model.Evaluate(test.Samples, test.Labels), 100*model.Accuracy(test.Samples, test.Labels))

	if *save != "" {
		if err := model.Save(*save); err != nil {
			log.Fatalf("failed to save model: %v", err)
		}
		fmt.Printf("Model saved to %s\n", *save)
	}
}

// bars draws one horizontal (class 0) or vertical (class 1) bar per image
// on top of low-amplitude noise.
func bars(n int, seed int64) *net.Dataset {
	rng := tensor.NewRNG(seed + 1)
	x := tensor.New(n, imageSize*imageSize)
	x.Randomize(rng, 0.1)
	y := tensor.New(n, 2)

	for i := 0; i < n; i++ {
		img := x.Row(i)
		pos := rng.Intn(imageSize)
		vertical := i%2 == 1
		for k := 0; k < imageSize; k++ {
			if vertical {
				img[k*imageSize+pos] = 1
			} else {
				img[pos*imageSize+k] = 1
			}
		}
		if vertical {
			y.Set(i, 1, 1)
		} else {
			y.Set(i, 0, 1)
		}
	}
	return &net.Dataset{Samples: x, Labels: y}
}
