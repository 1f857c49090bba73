package main

import "testing"

func TestNewRootCmd_Defaults(t *testing.T) {
	cmd := newRootCmd()

	port, err := cmd.Flags().GetInt("port")
	if err != nil || port != 8080 {
		t.Fatalf("expected default port 8080, got %d (err=%v)", port, err)
	}

	root, err := cmd.Flags().GetString("root")
	if err != nil || root != "./public" {
		t.Fatalf("expected default root ./public, got %q (err=%v)", root, err)
	}

	kq, err := cmd.Flags().GetBool("kqueue")
	if err != nil || kq {
		t.Fatalf("expected kqueue flag to default false, got %v (err=%v)", kq, err)
	}
}

func TestNewRootCmd_ThreadsDefaultIsPositive(t *testing.T) {
	cmd := newRootCmd()
	threads, err := cmd.Flags().GetInt("threads")
	if err != nil || threads < 1 {
		t.Fatalf("expected positive default thread count, got %d (err=%v)", threads, err)
	}
}
