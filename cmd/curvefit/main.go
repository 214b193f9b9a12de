// Command curvefit fits a 4th order polynomial to the mean of each
// group of an evaluation table and plots the fits with the data
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/samuelfneumann/offlinedose/analysis"
	"gonum.org/v1/plot/vg"
)

func main() {
	in := flag.String("in", "bs01.csv", "evaluation table")
	flag.Parse()

	fmt.Println("▌Loading data...")
	table, err := analysis.LoadGroups(*in)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Printf("Error: File '%v' not found!\n", *in)
		os.Exit(1)
	} else if err != nil {
		log.Fatalf("Error: %v", err)
	}
	fmt.Printf("✔ Data loaded successfully | Rows: %v\n", table.Len())

	fits, err := analysis.FitGroups(table)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	if !fits[0].Polynomial() {
		fmt.Fprintf(os.Stderr, "Warning: polynomial fitting failed, "+
			"using %v: %v\n", fits[0].Method, fits[0].Err)
	}

	p, err := analysis.CurveFitPlot(table, fits)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	saved, err := analysis.SaveAll(p, analysis.CurveFitBase,
		analysis.CurveFitFormats, 8*vg.Inch, 6*vg.Inch)
	for _, name := range saved {
		fmt.Printf("✔ Saved: %v\n", name)
	}
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	if _, err := analysis.Summarize(table, fits).WriteTo(os.Stdout); err != nil {
		log.Fatal(err)
	}
}
