// Command train trains a SAC dosage policy on a table of logged
// transitions, writing checkpoints and the exported policy to the
// checkpoint directory
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/samuelfneumann/offlinedose/dataset"
	"github.com/samuelfneumann/offlinedose/experiment"
)

func main() {
	configFile := flag.String("config", "", "JSON configuration file; "+
		"defaults are used if empty")
	data := flag.String("data", "", "CSV file of logged transitions, "+
		"overrides the configuration")
	resume := flag.String("resume", "", "checkpoint to resume training from")
	progress := flag.Bool("progress", false, "display a progress bar")
	flag.Parse()

	config := experiment.DefaultConfig()
	if *configFile != "" {
		var err error
		if config, err = experiment.LoadConfig(*configFile); err != nil {
			log.Fatal(err)
		}
	}
	if *data != "" {
		config.DatasetPath = *data
	}
	config.ProgressBar = config.ProgressBar || *progress

	exp, err := experiment.New(config, log.Default())
	if dataset.IsNotExist(err) {
		log.Fatalf("Error: data file %q not found", config.DatasetPath)
	} else if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer exp.Close()

	if *resume != "" {
		if _, err := exp.Resume(*resume); err != nil {
			log.Fatalf("Error: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt,
		syscall.SIGTERM)
	defer stop()

	res, err := exp.Run(ctx)
	if err != nil {
		exp.Close()
		log.Fatalf("Error: %v", err)
	}
	if _, err := exp.SaveTrackers(); err != nil {
		log.Printf("Failed to save episode data: %v", err)
	}
	log.Printf("Process completed: %v iterations (%v), best reward %.4f",
		res.Iterations, res.Reason, res.BestReward)
}
