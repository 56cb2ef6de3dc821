package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"cobraverifier"
	"cobraverifier/api"
	"cobraverifier/history"
)

var (
	historyFile = flag.String(
		"history",
		"",
		"JSON file containing the history to verify",
	)
	realTime = flag.Bool(
		"realtime",
		false,
		"Add real-time edges and check strict serializability",
	)
	maxViolations = flag.Int(
		"max",
		0,
		"Maximum number of reported violations. 0 reports all of them",
	)
	workers = flag.Int(
		"workers",
		0,
		"Number of workers used to build the conflict graph. 0 uses GOMAXPROCS",
	)
	jsonOut = flag.Bool(
		"json",
		false,
		"Write the verdict as JSON",
	)
	dotFile = flag.String(
		"dot",
		"",
		"Write the violating part of the conflict graph in DOT format to the file",
	)
	httpAddr = flag.String(
		"http",
		"",
		"Serve the verify endpoint on the address instead of verifying a file",
	)
	verbose = flag.Bool(
		"v",
		false,
		"Log progress",
	)
)

// Usage prints usage info
func Usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s -history FILE [OPTIONS]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "       %s -http ADDR [OPTIONS]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = Usage
	flag.Parse()

	opts := []cobraverifier.VerifierOption{}
	if *realTime {
		opts = append(opts, cobraverifier.WithRealTimeEdges())
	}
	if *maxViolations > 0 {
		opts = append(opts, cobraverifier.MaxReportedViolations(*maxViolations))
	}
	if *workers > 0 {
		opts = append(opts, cobraverifier.NumWorkers(*workers))
	}
	if *verbose {
		opts = append(opts, cobraverifier.WithLogger(log.Default()))
	}

	if *httpAddr != "" {
		log.Printf("Serving verifier on %v", *httpAddr)
		log.Fatal(http.ListenAndServe(*httpAddr, api.NewServer(opts...)))
	}

	if *historyFile == "" {
		flag.Usage()
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// Verify the history file and return the exit status
func run(opts []cobraverifier.VerifierOption) int {
	f, err := os.Open(*historyFile)
	if err != nil {
		log.Printf("Unable to open history: %v", err)
		return 2
	}
	defer f.Close()

	h, err := history.Decode(f)
	if err != nil {
		log.Printf("Unable to read history: %v", err)
		return 2
	}

	if *dotFile != "" {
		out, err := os.Create(*dotFile)
		if err != nil {
			log.Printf("Unable to create graph file: %v", err)
			return 2
		}
		defer out.Close()
		opts = append(opts, cobraverifier.ExportGraph(out))
	}

	verdict, err := cobraverifier.Verify(h, opts...)
	if err != nil {
		if errors.Is(err, history.ErrMalformedHistory) {
			log.Printf("Malformed history: %v", err)
			return 2
		}
		log.Printf("Unable to verify history: %v", err)
		return 1
	}

	if *jsonOut {
		if err := verdict.Export(os.Stdout); err != nil {
			log.Printf("Unable to write verdict: %v", err)
		}
	} else {
		_, resp := verdict.Response()
		fmt.Println(resp)
	}
	if !verdict.Ok() {
		return 1
	}
	return 0
}
