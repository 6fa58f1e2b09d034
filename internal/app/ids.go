package app

import "github.com/google/uuid"

// UUIDs generates random (v4) identifiers.
type UUIDs struct{}

func (UUIDs) NewID() string { return uuid.NewString() }

type nopReporter struct{}

func (nopReporter) ReportPartial(string, string, error) {}
