// Command train pretrains an RBM, DBN or DBM on a csv training set, measures
// the reconstruction error (or, with -classify, the error rate) on a test set
// and appends "iteration train_error test_error" to a results file.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"boltzmann"
	"boltzmann/dataset"
	"boltzmann/params"
)

var (
	trainPath   = flag.String("train", "", "training set csv, label first")
	testPath    = flag.String("test", "", "test set csv, label first")
	resultsPath = flag.String("results", "", "append results to this file")
	iteration   = flag.Int("iteration", 0, "cross-validation iteration number")
	paramsPath  = flag.String("params", "", "hyperparameter file")
	model       = flag.String("model", "dbn", "rbm, dbn or dbm")
	layers      = flag.Int("layers", 1, "number of layers")
	epochs      = flag.Int("epochs", 10, "training epochs")
	batchSize   = flag.Int("batch", 20, "mini-batch size")
	gibbs       = flag.Int("k", 1, "Gibbs sweeps per sample")
	algo        = flag.String("algo", "1", "1|cd, 2|pcd or 3|fpcd")
	reg         = flag.String("reg", "", "dropout or dropconnect; reads p from the parameter file")
	temperature = flag.Float64("t", 1, "temperature of every layer")
	out         = flag.String("out", "", "save the trained model to this file")
	seed        = flag.Int64("seed", 0, "random seed, 0 uses the clock")
	stopFile    = flag.String("stopfile", "./stopearly", "training stops after the current epoch when this file exists")
	verbose     = flag.Bool("verbose", false, "debug logging")
	classify    = flag.Bool("classify", false, "train the top layer with label units and report error rates instead of reconstruction errors")
	randomBias  = flag.Bool("randvbias", false, "draw the visible biases of the first layer uniformly from [0, 1) instead of from the training marginals")
)

func main() {
	flag.Parse()
	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	if *trainPath == "" || *testPath == "" || *paramsPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))
	log.WithField("seed", *seed).Debug("random source")

	algorithm, err := boltzmann.ParseAlgorithm(*algo)
	if err != nil {
		log.Fatalf("%v", err)
	}
	var variant boltzmann.Variant
	switch *reg {
	case "":
	case "dropout":
		variant = boltzmann.Dropout
	case "dropconnect":
		variant = boltzmann.Dropconnect
	default:
		log.Fatalf("unknown regularization %q", *reg)
	}

	train, err := dataset.ReadCSV(*trainPath, true)
	if err != nil {
		log.Fatalf("%v", err)
	}
	test, err := dataset.ReadCSV(*testPath, true)
	if err != nil {
		log.Fatalf("%v", err)
	}
	hyper, err := params.ReadFile(*paramsPath, *layers, variant != boltzmann.Plain)
	if err != nil {
		log.Fatalf("%v", err)
	}

	nL := 0
	if *classify {
		nL = train.NumLabels
	}
	var s *boltzmann.Stack
	switch *model {
	case "rbm", "dbn":
		s = boltzmann.NewDBN(train.NumFeatures, params.Hidden(hyper), nL)
	case "dbm":
		s = boltzmann.NewDBM(train.NumFeatures, params.Hidden(hyper), nL)
	default:
		log.Fatalf("unknown model %q", *model)
	}
	if *model == "rbm" && *layers != 1 {
		log.Fatalf("an rbm has exactly one layer, got %d", *layers)
	}

	log.Infof("creating and initializing %s", *model)
	if err := s.Initialize(rng, train); err != nil {
		log.Fatalf("%v", err)
	}
	if *randomBias {
		s.Layers[0].InitializeVisibleBiasRandom(rng)
	}
	cfgs := make([]boltzmann.TrainConfig, len(s.Layers))
	for k, m := range s.Layers {
		hyper[k].Apply(m)
		m.T = *temperature
		cfgs[k] = boltzmann.TrainConfig{
			Algorithm:  algorithm,
			Epochs:     *epochs,
			GibbsSteps: *gibbs,
			BatchSize:  *batchSize,
			Variant:    variant,
			Keep:       hyper[k].Keep,
			Reporter:   boltzmann.NewLogReporter(log),
			Stop:       stopEarly,
		}
	}
	log.Debugf("\n%s", s.SizeReport())

	log.Infof("training %s with %v", *model, algorithm)
	trainErr, testErr, err := run(s, rng, train, test, cfgs)
	if err != nil {
		log.Fatalf("%v", err)
	}
	what := "reconstruction error"
	if *classify {
		what = "classification error rate"
	}
	log.WithFields(logrus.Fields{"train": trainErr, "test": testErr}).Info(what)

	if *resultsPath != "" {
		if err := appendResult(*resultsPath, *iteration, trainErr, testErr); err != nil {
			log.Fatalf("%v", err)
		}
	}
	if *out != "" {
		if err := boltzmann.SaveFile(*out, s); err != nil {
			log.Fatalf("%v", err)
		}
	}
}

// run trains s and measures it on test, by classification when -classify is
// set and by reconstruction otherwise.
func run(s *boltzmann.Stack, rng *rand.Rand, train, test *dataset.Dataset, cfgs []boltzmann.TrainConfig) (float64, float64, error) {
	if *classify {
		trainErr, err := s.TrainDiscriminative(rng, train, cfgs)
		if err != nil {
			return 0, 0, err
		}
		testErr, err := s.Classify(test)
		return trainErr, testErr, err
	}
	trainErr, err := s.TrainLayers(rng, train, cfgs)
	if err != nil {
		return 0, 0, err
	}
	testErr, err := s.Reconstruct(test)
	return trainErr, testErr, err
}

func stopEarly() bool {
	if *stopFile == "" {
		return false
	}
	_, err := os.Stat(*stopFile)
	return !os.IsNotExist(err)
}

func appendResult(path string, iteration int, trainErr, testErr float64) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "\n%d %f %f", iteration, trainErr, testErr); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
