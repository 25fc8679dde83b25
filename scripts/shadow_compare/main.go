// Command shadow_compare replays a fixed set of read-only scheduler
// requests against two running instances of timetable-api and reports
// where their responses diverge. It exists for canary rollouts: point
// -baseline-base at the currently-deployed build and -candidate-base at
// the one about to replace it, and catch accidental response-shape or
// status-code drift before the candidate takes production traffic.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"
)

type target struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Critical bool   `json:"critical"`
}

type config struct {
	Targets []target `json:"targets"`
}

type comparison struct {
	Target          target
	BaselineStatus  int
	CandidateStatus int
	StatusMatch     bool
	BodyMatch       bool
	Error           error
	DurationBase    time.Duration
	DurationCand    time.Duration
}

func main() {
	var (
		baselineBase  string
		candidateBase string
		targetsPath   string
		timeout       time.Duration
	)

	flag.StringVar(&baselineBase, "baseline-base", "http://localhost:8080", "base URL of the currently-deployed timetable-api instance")
	flag.StringVar(&candidateBase, "candidate-base", "http://localhost:8081", "base URL of the candidate timetable-api instance")
	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "shadow_compare", "targets.json"), "path to JSON targets file")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	targets, err := loadTargets(targetsPath)
	if err != nil {
		log.Fatalf("failed to load targets: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	var (
		comparisons  []comparison
		breaking     int
		optionalDiff int
	)

	for _, t := range targets {
		comp := compareTarget(client, baselineBase, candidateBase, t)
		if comp.Error != nil {
			if t.Critical {
				breaking++
			}
		} else if !comp.StatusMatch || !comp.BodyMatch {
			if t.Critical {
				breaking++
			} else {
				optionalDiff++
			}
		}
		comparisons = append(comparisons, comp)
	}

	printReport(comparisons)

	fmt.Printf("Breaking diffs: %d, Optional diffs: %d\n", breaking, optionalDiff)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return cfg.Targets, nil
}

func compareTarget(client *http.Client, baselineBase, candidateBase string, tgt target) comparison {
	comp := comparison{Target: tgt}
	baseResp, baseDur, baseErr := performRequest(client, baselineBase, tgt)
	candResp, candDur, candErr := performRequest(client, candidateBase, tgt)
	comp.DurationBase = baseDur
	comp.DurationCand = candDur

	if baseErr != nil {
		comp.Error = fmt.Errorf("baseline request failed: %w", baseErr)
		return comp
	}
	if candErr != nil {
		comp.Error = fmt.Errorf("candidate request failed: %w", candErr)
		return comp
	}

	comp.BaselineStatus = baseResp.StatusCode
	comp.CandidateStatus = candResp.StatusCode
	comp.StatusMatch = comp.BaselineStatus == comp.CandidateStatus

	defer baseResp.Body.Close()
	defer candResp.Body.Close()

	baseBody, err := io.ReadAll(baseResp.Body)
	if err != nil {
		comp.Error = fmt.Errorf("read baseline body: %w", err)
		return comp
	}
	candBody, err := io.ReadAll(candResp.Body)
	if err != nil {
		comp.Error = fmt.Errorf("read candidate body: %w", err)
		return comp
	}

	comp.BodyMatch = bodiesEqual(baseBody, candBody)

	return comp
}

func performRequest(client *http.Client, base string, tgt target) (*http.Response, time.Duration, error) {
	if client == nil {
		return nil, 0, errors.New("nil client")
	}
	method := strings.ToUpper(strings.TrimSpace(tgt.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := tgt.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	url := strings.TrimRight(base, "/") + path

	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return nil, 0, err
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	return resp, time.Since(start), nil
}

// bodiesEqual compares response bodies structurally rather than
// byte-for-byte: generated schedule proposal IDs and export-link tokens
// differ between instances by design, but field shape and scalar values
// besides those should not.
func bodiesEqual(a, b []byte) bool {
	if bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b)) {
		return true
	}

	var aj, bj interface{}
	if err := json.Unmarshal(a, &aj); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bj); err != nil {
		return false
	}
	normalize(&aj)
	normalize(&bj)
	return reflect.DeepEqual(aj, bj)
}

func normalize(v *interface{}) {
	switch val := (*v).(type) {
	case map[string]interface{}:
		for k, v2 := range val {
			normalize(&v2)
			val[k] = v2
		}
	case []interface{}:
		for i, v2 := range val {
			normalize(&v2)
			val[i] = v2
		}
	case float64:
		if val == float64(int64(val)) {
			*v = int64(val)
		}
	}
}

func printReport(results []comparison) {
	fmt.Println("Shadow Compare Report")
	fmt.Println("======================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if !res.StatusMatch || !res.BodyMatch {
			status = "DIFF"
		}
		fmt.Printf("[%s] %s %s\n", status, res.Target.Method, res.Target.Path)
		fmt.Printf("  Baseline Status: %d (%s)\n", res.BaselineStatus, res.DurationBase)
		fmt.Printf("  Candidate Status: %d (%s)\n", res.CandidateStatus, res.DurationCand)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
		} else {
			fmt.Printf("  Status match: %t | Body match: %t | Critical: %t\n", res.StatusMatch, res.BodyMatch, res.Target.Critical)
		}
	}
}
