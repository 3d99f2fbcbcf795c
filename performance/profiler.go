package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"runtime/pprof"

	"github.com/jamespfennell/gtfsrt"
	"github.com/jamespfennell/gtfsrt/merge"
	"github.com/jamespfennell/gtfsrt/schedule"
)

var out = flag.String("out", "gtfsrt_package_profile.pb.gz", "file path to output the profile to")
var static = flag.Bool("static", false, "profile parsing GTFS static archives instead of realtime messages")
var iterations = flag.Int("n", 1, "number of times each file is processed")

func main() {
	if err := run(); err != nil {
		fmt.Println("failed:", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()
	files := flag.Args()
	var contents [][]byte
	for _, file := range files {
		b, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		contents = append(contents, b)
	}
	engine, err := merge.NewEngine()
	if err != nil {
		return err
	}

	fmt.Println("starting profile")
	var profile bytes.Buffer
	if err := pprof.StartCPUProfile(&profile); err != nil {
		return err
	}
	for n := 0; n < *iterations; n++ {
		for i, in := range contents {
			fmt.Printf("processing file %d/%d\n", i+1, len(contents))
			if *static {
				if _, err := schedule.ParseStatic(in, schedule.ParseStaticOptions{}); err != nil {
					return err
				}
				continue
			}
			realtime, err := gtfsrt.ParseRealtime(in, nil)
			if err != nil {
				return err
			}
			if _, err := engine.Apply(files[i], realtime); err != nil {
				return err
			}
			if _, err := gtfsrt.Marshal(realtime.Message); err != nil {
				return err
			}
		}
	}
	pprof.StopCPUProfile()

	fmt.Println("writing profile to", *out)
	return os.WriteFile(*out, profile.Bytes(), 0644)
}
