package models

import "time"

// PackageStatus is the workflow stage of a filing package.
type PackageStatus string

const (
	PackageStatusIntake   PackageStatus = "intake"
	PackageStatusScrutiny PackageStatus = "scrutiny"
	PackageStatusReady    PackageStatus = "ready"
	PackageStatusFiled    PackageStatus = "filed"
)

// FilingPackage is a tracked filing: the primary petition plus its
// annexures and index, submitted for court scrutiny.
type FilingPackage struct {
	ID           string
	Name         string
	CaseCategory string // stamp duty schedule key, e.g. "civil-suit"
	CourtProfile string // named profile the rules evaluate against
	Status       PackageStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
