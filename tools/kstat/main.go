// Command kstat turns a kernel memory/scheduler statistics dump into a
// pprof profile for offline visualization (`go tool pprof`), mirroring
// the profiling angle the teacher's go.mod signals (github.com/google/
// pprof) but linking it into a host-side tool instead of the
// freestanding kernel binary, which has no business importing a
// profile encoder. It reads a line-oriented dump — the shape
// kernelctx's diagnostics print, "name count" per line — and encodes
// each named counter (free frames, live processes, futex waiters) as a
// pprof sample type so every counter shows up as its own column in
// `pprof -top`.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/pprof/profile"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "usage: kstat <dump file> <output.pb.gz>\n")
		os.Exit(1)
	}

	in, err := os.Open(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "kstat: %v\n", err)
		os.Exit(1)
	}
	defer in.Close()

	names, values, err := parseDump(in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kstat: parse: %v\n", err)
		os.Exit(1)
	}

	p := buildProfile(names, values)

	out, err := os.Create(os.Args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "kstat: %v\n", err)
		os.Exit(1)
	}
	defer out.Close()
	if err := p.Write(out); err != nil {
		fmt.Fprintf(os.Stderr, "kstat: write: %v\n", err)
		os.Exit(1)
	}
}

func parseDump(in *os.File) (names []string, values []int64, err error) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, nil, fmt.Errorf("malformed line %q", line)
		}
		v, verr := strconv.ParseInt(fields[1], 10, 64)
		if verr != nil {
			return nil, nil, fmt.Errorf("bad value in %q: %w", line, verr)
		}
		names = append(names, fields[0])
		values = append(values, v)
	}
	return names, values, scanner.Err()
}

// buildProfile packs every counter into a single pprof sample, one value
// per counter, and gives each counter its own sample type so distinct
// kernel stats (free frames vs. live processes) don't get summed together
// in pprof's output.
func buildProfile(names []string, values []int64) *profile.Profile {
	p := &profile.Profile{
		TimeNanos:     time.Unix(0, 0).UnixNano(),
		DurationNanos: 0,
	}
	root := &profile.Function{ID: 1, Name: "kernelctx.Snapshot", SystemName: "kernelctx.Snapshot"}
	loc := &profile.Location{ID: 1, Line: []profile.Line{{Function: root}}}
	p.Function = []*profile.Function{root}
	p.Location = []*profile.Location{loc}

	for _, name := range names {
		st := &profile.ValueType{Type: name, Unit: "count"}
		p.SampleType = append(p.SampleType, st)
	}
	sampleValues := make([]int64, len(values))
	copy(sampleValues, values)
	p.Sample = []*profile.Sample{{
		Location: []*profile.Location{loc},
		Value:    sampleValues,
	}}
	return p
}
