package cobraverifier

import (
	"io"
	"log"
	"runtime"
)

type VerifierOption interface{}

type realTimeOption struct{}

// Add real-time edges to the graph.
//
// With real-time edges the verifier checks strict serializability.
// A cycle that only exists because of real-time order is reported, but the history is still considered serializable.
// Default value is false.
func WithRealTimeEdges() VerifierOption {
	return realTimeOption{}
}

type maxReportedOption struct{ n int }

// Configure the maximum number of violations included in the verdict.
//
// Default value is 0, which reports all violations.
func MaxReportedViolations(n int) VerifierOption {
	return maxReportedOption{n: n}
}

type numWorkersOption struct{ n int }

// Configure the number of workers used to build the conflict graph.
//
// Default value is GOMAXPROCS
func NumWorkers(n int) VerifierOption {
	return numWorkersOption{n: n}
}

type loggerOption struct{ logger *log.Logger }

// Write progress information to the logger.
//
// By default nothing is logged.
func WithLogger(logger *log.Logger) VerifierOption {
	return loggerOption{logger: logger}
}

type exportGraphOption struct{ w io.Writer }

// Write the violating part of the conflict graph in DOT format to the writer.
//
// Nothing is written if no violation is found.
func ExportGraph(w io.Writer) VerifierOption {
	return exportGraphOption{w: w}
}

// Create a verifier configured by the provided options
func PrepareVerifier(opts ...VerifierOption) *Verifier {
	var (
		realTime    = false
		maxReported = 0
		// Will not change GOMAXPROCS but only return the current value
		numWorkers = runtime.GOMAXPROCS(0)
		logger     = log.New(io.Discard, "", 0)

		export []io.Writer
	)

	for _, opt := range opts {
		switch t := opt.(type) {
		case realTimeOption:
			realTime = true
		case maxReportedOption:
			maxReported = t.n
		case numWorkersOption:
			numWorkers = t.n
		case loggerOption:
			if t.logger != nil {
				logger = t.logger
			}
		case exportGraphOption:
			export = append(export, t.w)
		}
	}
	return &Verifier{
		realTime:    realTime,
		maxReported: maxReported,
		numWorkers:  numWorkers,
		logger:      logger,
		export:      export,
	}
}
