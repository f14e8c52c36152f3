package main

import "turtlemanager.dev/internal/sim/world"

// The store takes one observer of each kind; these fan out to every sink.
// Sink errors are dropped so a failing log never fails a query.

type multiQueryLogger []world.QueryLogger

func (m multiQueryLogger) WriteQuery(entry world.QueryLogEntry) error {
	for _, l := range m {
		if l != nil {
			_ = l.WriteQuery(entry)
		}
	}
	return nil
}

type multiReportLogger []world.ReportLogger

func (m multiReportLogger) WriteReport(entry world.ReportLogEntry) error {
	for _, l := range m {
		if l != nil {
			_ = l.WriteReport(entry)
		}
	}
	return nil
}

type multiSnapshotRecorder []world.SnapshotRecorder

func (m multiSnapshotRecorder) RecordSnapshot(info world.SnapshotInfo) {
	for _, r := range m {
		if r != nil {
			r.RecordSnapshot(info)
		}
	}
}
