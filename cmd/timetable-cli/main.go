package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/campusops/timetable-engine/internal/dto"
	"github.com/campusops/timetable-engine/internal/scheduler"
	"github.com/campusops/timetable-engine/internal/service"
)

var (
	inputFile   = "seed.json"
	outputFile  = "schedule.json"
	maxAttempts = 25
	maxIters    = 50
	concurrency = 1
)

func main() {
	log.SetFlags(log.Ltime)

	cmdTimetable := &cobra.Command{
		Use:   "timetable-cli",
		Short: "Generate and inspect constraint-based university schedules",
		Long:  "A standalone driver for the timetable scheduling engine, with no HTTP or database dependency.",
	}

	cmdGen := &cobra.Command{
		Use:   "generate",
		Short: "run the scheduling engine against a seed file and write the resulting proposal",
		Run:   commandGenerate,
	}
	cmdGen.Flags().StringVarP(&inputFile, "input", "i", inputFile, "JSON file holding rooms, staff and study plans (dto.GenerateScheduleRequest shape)")
	cmdGen.Flags().StringVarP(&outputFile, "output", "o", outputFile, "file to write the resulting proposal to")
	cmdGen.Flags().IntVar(&maxAttempts, "max-attempts", maxAttempts, "maximum construction attempts")
	cmdGen.Flags().IntVar(&maxIters, "max-local-search-iterations", maxIters, "maximum pairwise local search iterations per attempt")
	cmdGen.Flags().IntVar(&concurrency, "concurrency", concurrency, "number of construction attempts to run concurrently")
	cmdTimetable.AddCommand(cmdGen)

	cmdScore := &cobra.Command{
		Use:   "score",
		Short: "print a previously generated proposal as a table ordered by day and hour",
		Run:   commandScore,
	}
	cmdScore.Flags().StringVarP(&outputFile, "output", "o", outputFile, "proposal file to read")
	cmdTimetable.AddCommand(cmdScore)

	if err := cmdTimetable.Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}

func commandGenerate(cmd *cobra.Command, args []string) {
	raw, err := os.ReadFile(inputFile)
	if err != nil {
		log.Fatalf("reading %s: %v", inputFile, err)
	}

	var req dto.GenerateScheduleRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		log.Fatalf("parsing %s: %v", inputFile, err)
	}

	logr := zap.NewNop()
	svc := service.NewScheduleGeneratorService(nil, nil, nil, nil, logr, service.ScheduleGeneratorConfig{
		Engine: scheduler.Config{
			MaxAttempts:              maxAttempts,
			MaxLocalSearchIterations: maxIters,
			Concurrency:              concurrency,
		},
	})

	resp, err := svc.Generate(context.Background(), req)
	if err != nil {
		log.Fatalf("generate: %v", err)
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		log.Fatalf("encoding proposal: %v", err)
	}
	if err := os.WriteFile(outputFile, out, 0o644); err != nil {
		log.Fatalf("writing %s: %v", outputFile, err)
	}

	log.Printf("proposal %s: score %.2f, coverage %.1f%%, %d unassigned, %d diagnostics",
		resp.ProposalID, resp.Score, resp.Coverage*100, len(resp.Unassigned), len(resp.Diagnostics))
	for _, d := range resp.Diagnostics {
		log.Printf("  [%s] %s", d.Severity, d.Message)
	}
}

func commandScore(cmd *cobra.Command, args []string) {
	raw, err := os.ReadFile(outputFile)
	if err != nil {
		log.Fatalf("reading %s: %v", outputFile, err)
	}

	var resp dto.GenerateScheduleResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		log.Fatalf("parsing %s: %v", outputFile, err)
	}

	dayOrder := map[string]int{
		"SUNDAY": 0, "MONDAY": 1, "TUESDAY": 2, "WEDNESDAY": 3,
		"THURSDAY": 4, "FRIDAY": 5, "SATURDAY": 6,
	}
	assignments := append([]dto.AssignmentResponse(nil), resp.Assignments...)
	sort.Slice(assignments, func(i, j int) bool {
		if assignments[i].Day != assignments[j].Day {
			return dayOrder[assignments[i].Day] < dayOrder[assignments[j].Day]
		}
		if assignments[i].StartHour != assignments[j].StartHour {
			return assignments[i].StartHour < assignments[j].StartHour
		}
		return assignments[i].CourseCode < assignments[j].CourseCode
	})

	courseLen, staffLen, roomLen := len("course"), len("staff"), len("room")
	for _, a := range assignments {
		if len(a.CourseCode) > courseLen {
			courseLen = len(a.CourseCode)
		}
		if len(a.StaffID) > staffLen {
			staffLen = len(a.StaffID)
		}
		if len(a.RoomID) > roomLen {
			roomLen = len(a.RoomID)
		}
	}

	fmt.Printf("%-9s %-5s %-*s %-*s %-*s %s\n", "day", "hour", courseLen, "course", staffLen, "staff", roomLen, "room", "type")
	for _, a := range assignments {
		fmt.Printf("%-9s %02d-%02d %-*s %-*s %-*s %s\n",
			a.Day, a.StartHour, a.EndHour, courseLen, a.CourseCode, staffLen, a.StaffID, roomLen, a.RoomID, a.BlockType)
	}
	if len(resp.Unassigned) > 0 {
		fmt.Printf("\nunassigned (%d): %v\n", len(resp.Unassigned), resp.Unassigned)
	}
}
