// Command compare plots the mean of each group of an evaluation table
// as a smooth curve with a ±1 standard deviation band
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/samuelfneumann/offlinedose/analysis"
	"gonum.org/v1/plot/vg"
)

func main() {
	in := flag.String("in", "bs01.csv", "evaluation table")
	flag.Parse()

	fmt.Println("▌Loading data...")
	table, err := analysis.LoadGroups(*in)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Printf("Error: File '%v' not found in current directory!\n", *in)
		os.Exit(1)
	} else if err != nil {
		log.Fatalf("Error: %v", err)
	}
	fmt.Printf("✔ Data loaded successfully | Rows: %v\n", table.Len())

	p, err := analysis.ComparisonPlot(table)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	saved, err := analysis.SaveAll(p, analysis.ComparisonBase,
		analysis.ComparisonFormats, 7*vg.Inch, 5*vg.Inch)
	for i, name := range saved {
		fmt.Printf("✔ Saved %v format: %v\n",
			strings.ToUpper(analysis.ComparisonFormats[i]), name)
	}
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	if _, err := analysis.Summarize(table, nil).WriteTo(os.Stdout); err != nil {
		log.Fatal(err)
	}
}
