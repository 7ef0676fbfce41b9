package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/FlavioCFOliveira/normconv/internal/loss"
	"github.com/FlavioCFOliveira/normconv/internal/net"
	"github.com/FlavioCFOliveira/normconv/internal/opt"
	"github.com/FlavioCFOliveira/normconv/internal/tensor"
)

// MLP example: a batch-normalized multi-layer perceptron trained on either
// a CSV file or a synthetic quadrant classification task.
func main() {
	epochs := flag.Int("epochs", 50, "training epochs")
	batch := flag.Int("batch", 16, "mini-batch size")
	lr := flag.Float64("lr", 0.05, "learning rate")
	hidden := flag.String("hidden", "16,8", "comma separated hidden layer sizes")
	seed := flag.Int64("seed", 42, "random seed")
	csvPath := flag.String("csv", "", "CSV file to train on (default: synthetic data)")
	labelCol := flag.Int("label", -1, "class label column in the CSV (default: last)")
	header := flag.Bool("header", true, "CSV has a header row")
	save := flag.String("save", "", "save the best model to this file")
	logPath := flag.String("log", "", "write per-epoch metrics to this CSV file")
	flag.Parse()

	data, classes, err := loadData(*csvPath, *labelCol, *header, *seed)
	if err != nil {
		log.Fatalf("failed to load data: %v", err)
	}
	data.Normalize()
	train, test := data.Split(0.8)

	sizes, err := parseSizes(*hidden)
	if err != nil {
		log.Fatalf("invalid -hidden: %v", err)
	}
	sizes = append([]int{data.Samples.Cols()}, append(sizes, classes)...)

	sgd := &opt.SGD{LearningRate: *lr}
	model, err := net.NewMLP(sizes, loss.SoftmaxCrossEntropy{}, sgd, tensor.NewRNG(*seed))
	if err != nil {
		log.Fatalf("failed to build model: %v", err)
	}
	model.Summary(os.Stdout)

	callbacks := []net.Callback{
		net.Logger{Interval: max(1, *epochs/10)},
		net.NewSchedulerCallback(opt.NewReduceLROnPlateau(sgd, 0.5, 5, 1e-4, 1e-4)),
		net.NewEarlyStopping(15, 1e-5),
	}
	if *save != "" {
		callbacks = append(callbacks, net.NewModelCheckpoint(*save))
	}
	if *logPath != "" {
		callbacks = append(callbacks, net.NewCSVLogger(*logPath, false))
	}

	cfg := net.Config{Epochs: *epochs, BatchSize: *batch, Shuffle: true, Seed: *seed}
	if _, err := model.Fit(train.Samples, train.Labels, cfg, callbacks...); err != nil {
		log.Fatalf("training failed: %v", err)
	}

	fmt.Printf("\nTrain accuracy: %.2f%%\n", 100*model.Accuracy(train.Samples, train.Labels))
	if test.Len() > 0 {
		fmt.Printf("Test loss: %.4f, accuracy: %.2f%%\n",
			model.Evaluate(test.Samples, test.Labels), 100*model.Accuracy(test.Samples, test.Labels))
	}
}

// loadData returns one-hot labelled samples and the number of classes.
func loadData(path string, labelCol int, header bool, seed int64) (*net.Dataset, int, error) {
	if path == "" {
		return quadrants(400, seed), 4, nil
	}

	cols, err := countColumns(path)
	if err != nil {
		return nil, 0, err
	}
	if labelCol < 0 {
		labelCol = cols - 1
	}
	data, err := net.LoadCSV(path, []int{labelCol}, header)
	if err != nil {
		return nil, 0, err
	}

	classes := 0
	for i := 0; i < data.Len(); i++ {
		classes = max(classes, int(data.Labels.At(i, 0))+1)
	}
	oneHot, err := net.OneHot(data.Labels, classes)
	if err != nil {
		return nil, 0, err
	}
	data.Labels = oneHot
	return data, classes, nil
}

func countColumns(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	first, _, _ := strings.Cut(string(raw), "\n")
	return len(strings.Split(strings.TrimSpace(first), ",")), nil
}

// quadrants labels points in [-1,1)^2 by the quadrant they fall in.
func quadrants(n int, seed int64) *net.Dataset {
	x := tensor.New(n, 2)
	x.Randomize(tensor.NewRNG(seed+1), 1)
	y := tensor.New(n, 4)
	for i := 0; i < n; i++ {
		c := 0
		if x.At(i, 0) < 0 {
			c++
		}
		if x.At(i, 1) < 0 {
			c += 2
		}
		y.Set(i, c, 1)
	}
	return &net.Dataset{Samples: x, Labels: y}
}

func parseSizes(s string) ([]int, error) {
	var sizes []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		if v <= 0 {
			return nil, fmt.Errorf("layer size %d must be positive", v)
		}
		sizes = append(sizes, v)
	}
	return sizes, nil
}
