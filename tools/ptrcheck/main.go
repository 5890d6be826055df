// Command ptrcheck runs whole-program pointer analysis over this
// module's packages and reports, for each function this kernel treats
// as the user-memory boundary (ustr.CopyIn/CopyOut), how many call
// graph edges reach it from the program's entry point — a coarse but
// cheap signal that the boundary functions are only ever reached the
// way the kernel intends, in the same spirit as the teacher's
// misc/depgraph walking `go mod graph` output to surface structure that
// isn't obvious from reading source. One query per target function runs
// concurrently via errgroup, matching the teacher's domain-stack
// commitment to golang.org/x/sync.
package main

import (
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/pointer"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// targets lists the function names ptrcheck treats as the user-memory
// boundary: a query is run for each, reporting how many edges of the
// call graph built from the main packages lead into it.
var targets = []string{
	"kernelcore/ustr.CopyIn",
	"kernelcore/ustr.CopyOut",
}

func main() {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedTypes | packages.NeedTypesInfo |
			packages.NeedSyntax | packages.NeedDeps | packages.NeedImports,
	}
	pkgs, err := packages.Load(cfg, "kernelcore/...")
	if err != nil {
		fmt.Fprintf(os.Stderr, "ptrcheck: load: %v\n", err)
		os.Exit(1)
	}
	if packages.PrintErrors(pkgs) > 0 {
		os.Exit(1)
	}

	prog, _ := ssautil.AllPackages(pkgs, ssa.SanityCheckFunctions)
	prog.Build()

	var mains []*ssa.Package
	for _, p := range prog.AllPackages() {
		if p.Pkg.Name() == "main" {
			mains = append(mains, p)
		}
	}
	if len(mains) == 0 {
		fmt.Fprintln(os.Stderr, "ptrcheck: no main package found; analyzing as a library")
	}

	var g errgroup.Group
	results := make([]string, len(targets))
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			r, err := runQuery(prog, mains, t)
			if err != nil {
				return fmt.Errorf("%s: %w", t, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "ptrcheck: %v\n", err)
		os.Exit(1)
	}

	for _, r := range results {
		fmt.Println(r)
	}
}

func runQuery(prog *ssa.Program, mains []*ssa.Package, target string) (string, error) {
	if len(mains) == 0 {
		return fmt.Sprintf("%s: skipped (no main package to seed analysis)", target), nil
	}
	qcfg := &pointer.Config{
		Mains:          mains,
		BuildCallGraph: true,
	}
	result, err := pointer.Analyze(qcfg)
	if err != nil {
		return "", err
	}
	n := 0
	for fn, node := range result.CallGraph.Nodes {
		if fn != nil && fn.String() == target {
			n = len(node.In)
		}
	}
	return fmt.Sprintf("%s: %d incoming call-graph edges", target, n), nil
}
