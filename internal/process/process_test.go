package process

import (
	"testing"

	"github.com/cptspacemanspiff/jolt/internal/model"
)

func TestBuildTree_AssemblesChildrenByParentPID(t *testing.T) {
	flat := []*model.ProcessRecord{
		{PID: 1, ParentPID: 0, Name: "init"},
		{PID: 100, ParentPID: 1, Name: "shell"},
		{PID: 101, ParentPID: 100, Name: "editor"},
		{PID: 102, ParentPID: 100, Name: "browser"},
	}

	roots := BuildTree(flat)
	if len(roots) != 1 || roots[0].PID != 1 {
		t.Fatalf("expected single root pid=1, got %+v", roots)
	}
	if len(roots[0].Children) != 1 || roots[0].Children[0].PID != 100 {
		t.Fatalf("expected init to have one child pid=100, got %+v", roots[0].Children)
	}
	shell := roots[0].Children[0]
	if len(shell.Children) != 2 {
		t.Fatalf("expected shell to have 2 children, got %d", len(shell.Children))
	}
}

func TestBuildTree_OrphanAndSelfParentBecomeRoots(t *testing.T) {
	flat := []*model.ProcessRecord{
		{PID: 1, ParentPID: 1, Name: "kernel-thread-group"}, // self-parented, e.g. pid 1's own parent
		{PID: 50, ParentPID: 2, Name: "kthreadd-child"},     // parent (pid 2) not in the top-N set
	}

	roots := BuildTree(flat)
	if len(roots) != 2 {
		t.Fatalf("expected both records to surface as roots, got %d", len(roots))
	}
}

func TestCollector_IsPCoreFalseForUnknownCPU(t *testing.T) {
	c := New(5)
	// detectTopology globs the real host's /sys tree; regardless of outcome,
	// querying an unknown CPU id must never panic and must report false.
	if c.IsPCore(999999) {
		t.Fatalf("expected unknown cpu id to report false")
	}
}

func TestCollector_NewDefaultsTopN(t *testing.T) {
	c := New(0)
	if c.topN != 10 {
		t.Fatalf("expected default topN=10, got %d", c.topN)
	}
}
