// Package simulate drives a running dropwatch server end to end: it posts
// generated clears, forces a recompute and checks the published stats
// against what it sent.
package simulate

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL       string        // Base URL of the service
	Characters    int           // Number of simulated characters
	Bosses        []string      // Boss ids to clear; empty means every boss
	DropChance    float64       // Probability of each catalog item dropping
	FailRate      float64       // Probability that an attempt fails
	DuplicateRate float64       // Probability of resubmitting a clear in the same period
	Workers       int           // Number of concurrent submitters
	Timeout       time.Duration // HTTP request timeout
	Seed          uint64        // Seed for the clear generator
	OutputFile    string        // Optional file for the generated clears
}

// Stats holds run statistics.
type Stats struct {
	ClearsGenerated int
	Submitted       int
	Accepted        int
	Duplicates      int
	Failed          int
	PairsVerified   int
	PairsSkipped    int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}
