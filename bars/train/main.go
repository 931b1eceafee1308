package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"boltzmann"
	"boltzmann/bars"
)

var (
	cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")
	model      = flag.String("model", "rbm", "rbm, drbm, dbn or dbm")
	algo       = flag.String("algo", "cd", "cd, pcd or fpcd")
	hidden     = flag.String("hidden", "16", "comma separated hidden units per layer")
	size       = flag.Int("size", 4, "image side length")
	samples    = flag.Int("samples", 200, "number of training images")
	epochs     = flag.Int("epochs", 100, "training epochs")
	batchSize  = flag.Int("batch", 10, "mini-batch size")
	gibbs      = flag.Int("k", 1, "Gibbs sweeps per sample")
	eta        = flag.Float64("eta", 0.1, "learning rate")
	momentum   = flag.Float64("momentum", 0.5, "momentum")
	decay      = flag.Float64("decay", 0.0002, "weight decay")
	keep       = flag.Float64("keep", 0, "dropout keep probability, 0 disables dropout")
	seed       = flag.Int64("seed", 5, "random seed")
	port       = flag.Int("port", 8089, "port of the inspection server, 0 disables it")
	out        = flag.String("out", "", "save the trained model to this file")
	classify   = flag.Bool("classify", false, "dbn and dbm: give the top layer label units and train it discriminatively")

	weightsChan    = make(chan chan []byte)
	lossChan       = make(chan chan []float64)
	printDebugChan = make(chan struct{})
)

func main() {
	flag.Parse()
	log := logrus.New()
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	if *port > 0 {
		http.HandleFunc("/Weights", func(w http.ResponseWriter, r *http.Request) {
			c := make(chan []byte)
			weightsChan <- c
			w.Write(<-c)
		})
		http.HandleFunc("/Loss", func(w http.ResponseWriter, r *http.Request) {
			c := make(chan []float64)
			lossChan <- c
			json.NewEncoder(w).Encode(<-c)
		})
		http.HandleFunc("/PrintDebug", func(w http.ResponseWriter, r *http.Request) {
			printDebugChan <- struct{}{}
		})
		go func() {
			log.Printf("Listening on port %d", *port)
			if err := http.ListenAndServe(fmt.Sprintf(":%d", *port), nil); err != nil {
				log.Fatalf("%v", err)
			}
		}()
	}

	rng := rand.New(rand.NewSource(*seed))
	log.Printf("seed: %d", *seed)

	algorithm, err := boltzmann.ParseAlgorithm(*algo)
	if err != nil {
		log.Fatalf("%v", err)
	}
	layers, err := parseHidden(*hidden)
	if err != nil {
		log.Fatalf("%v", err)
	}
	train := bars.GenSet(rng, *size, *samples)
	test := bars.GenSet(rng, *size, *samples/2)

	cfg := boltzmann.TrainConfig{
		Algorithm:  algorithm,
		Epochs:     *epochs,
		GibbsSteps: *gibbs,
		BatchSize:  *batchSize,
	}
	if *keep > 0 {
		cfg.Variant |= boltzmann.Dropout
		cfg.Keep = *keep
	}

	losses := make([]float64, 0)
	doPrint := false
	var weights func() [][]float64
	reporter := boltzmann.NewLogReporter(log)
	cfg.Reporter = boltzmann.ReporterFunc(func(p boltzmann.Progress) {
		reporter.Report(p)
		losses = append(losses, p.Error)
		handleHTTP(weights(), losses, &doPrint)
		if doPrint {
			log.Printf("%v", p)
		}
	})

	var saved interface{ Save(w io.Writer) error }
	switch *model {
	case "rbm", "drbm":
		nL := 0
		if *model == "drbm" {
			nL = train.NumLabels
		}
		m := boltzmann.NewRBM(train.NumFeatures, layers[0], nL)
		setHyper(m)
		if err := m.Initialize(rng, train); err != nil {
			log.Fatalf("%v", err)
		}
		weights = func() [][]float64 { return [][]float64{m.W.Data} }
		saved = m
		if nL > 0 {
			trainErr, err := m.TrainDiscriminative(rng, train, cfg)
			if err != nil {
				log.Fatalf("%v", err)
			}
			testErr, err := m.Classify(test)
			if err != nil {
				log.Fatalf("%v", err)
			}
			log.WithFields(logrus.Fields{"train": trainErr, "test": testErr}).Info("classification error rate")
			break
		}
		trainErr, err := m.Train(rng, train, cfg)
		if err != nil {
			log.Fatalf("%v", err)
		}
		testErr, err := m.Reconstruct(test, boltzmann.Conditional{})
		if err != nil {
			log.Fatalf("%v", err)
		}
		log.WithFields(logrus.Fields{"train": trainErr, "test": testErr}).Info("reconstruction error")
	case "dbn", "dbm":
		nL := 0
		if *classify {
			nL = train.NumLabels
		}
		s := boltzmann.NewDBN(train.NumFeatures, layers, nL)
		if *model == "dbm" {
			s = boltzmann.NewDBM(train.NumFeatures, layers, nL)
		}
		for _, m := range s.Layers {
			setHyper(m)
		}
		if err := s.Initialize(rng, train); err != nil {
			log.Fatalf("%v", err)
		}
		log.Printf("\n%s", s.SizeReport())
		weights = func() [][]float64 {
			ws := make([][]float64, len(s.Layers))
			for k, m := range s.Layers {
				ws[k] = m.W.Data
			}
			return ws
		}
		saved = s
		if *classify {
			cfgs := make([]boltzmann.TrainConfig, len(s.Layers))
			for k := range cfgs {
				cfgs[k] = cfg
			}
			trainErr, err := s.TrainDiscriminative(rng, train, cfgs)
			if err != nil {
				log.Fatalf("%v", err)
			}
			testErr, err := s.Classify(test)
			if err != nil {
				log.Fatalf("%v", err)
			}
			log.WithFields(logrus.Fields{"train": trainErr, "test": testErr}).Info("classification error rate")
			break
		}
		trainErr, err := s.Train(rng, train, cfg)
		if err != nil {
			log.Fatalf("%v", err)
		}
		testErr, err := s.Reconstruct(test)
		if err != nil {
			log.Fatalf("%v", err)
		}
		log.WithFields(logrus.Fields{"train": trainErr, "test": testErr}).Info("reconstruction error")
	default:
		log.Fatalf("unknown model %q", *model)
	}

	if *out != "" {
		if err := boltzmann.SaveFile(*out, saved); err != nil {
			log.Fatalf("%v", err)
		}
		log.Printf("saved %s", *out)
	}
}

func setHyper(m *boltzmann.RBM) {
	m.Eta, m.EtaMax, m.EtaMin = *eta, *eta, *eta/10
	m.Alpha = *momentum
	m.Lambda = *decay
}

func parseHidden(s string) ([]int, error) {
	var hs []int
	for _, f := range strings.Split(s, ",") {
		h, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, err
		}
		hs = append(hs, h)
	}
	return hs, nil
}

func handleHTTP(weights [][]float64, losses []float64, doPrint *bool) {
	select {
	case cn := <-weightsChan:
		b, err := json.Marshal(weights)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		cn <- b
	case cn := <-lossChan:
		cn <- losses
	case <-printDebugChan:
		*doPrint = !*doPrint
	default:
		return
	}
}
