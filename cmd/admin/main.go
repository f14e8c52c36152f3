package main

import (
	"fmt"
	"os"
)

const usage = `usage: admin <command> [flags]

commands:
  inspect   summarize a snapshot file
  rollback  revert reported block changes inside a box
  db        query the sqlite index
  state     print /admin/v1/state from a running server
  snapshot  ask a running server to save now`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	switch os.Args[1] {
	case "inspect":
		inspectCmd(os.Args[2:])
	case "rollback":
		rollbackCmd(os.Args[2:])
	case "db":
		dbCmd(os.Args[2:])
	case "state":
		stateCmd(os.Args[2:])
	case "snapshot":
		snapshotCmd(os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}
