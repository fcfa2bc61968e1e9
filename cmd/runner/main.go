// The runner executes inside the per-language sandbox image. It reads a
// single JSON payload from standard input, grades the mounted code
// against the mounted fixtures and writes the aggregate verdict to
// standard output exactly once.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/juezlab/grader/internal/protocol"
	"github.com/juezlab/grader/internal/runner"
)

const fixtureDir = "/tests"

func main() {
	lang := flag.String("lang", "", "language profile baked into this image")
	flag.Parse()

	profile, ok := runner.ProfileFor(*lang)
	if !ok {
		emit(protocol.Result{
			Status: protocol.StatusError,
			Cases:  []protocol.CaseResult{},
			Stderr: fmt.Sprintf("unknown language profile %q", *lang),
		})
		os.Exit(1)
	}

	var payload protocol.Payload
	if err := json.NewDecoder(os.Stdin).Decode(&payload); err != nil {
		payload = protocol.Payload{}
	}
	if payload.SourceFile == "" {
		payload.SourceFile = "/code/" + defaultSourceFile(profile.Name)
	}
	if payload.TimeLimitMs <= 0 {
		payload.TimeLimitMs = 1500
	}

	workDir, err := os.MkdirTemp("", "build-")
	if err != nil {
		emit(protocol.Result{
			Status: protocol.StatusError,
			Cases:  []protocol.CaseResult{},
			Stderr: fmt.Sprintf("create work dir: %v", err),
		})
		os.Exit(1)
	}
	defer os.RemoveAll(workDir)

	r := runner.New(profile, fixtureDir, workDir)
	emit(r.Execute(context.Background(), payload))
}

func defaultSourceFile(profile string) string {
	switch profile {
	case "python":
		return "main.py"
	case "javascript":
		return "main.js"
	case "cpp":
		return "main.cpp"
	case "java":
		return "Main.java"
	default:
		return "main"
	}
}

func emit(result protocol.Result) {
	if err := json.NewEncoder(os.Stdout).Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "encode result: %v\n", err)
	}
}
