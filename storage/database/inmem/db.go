// Package inmemdb implements the core repositories on in-process maps.
// It backs unit tests and local hacking; semantics (uniqueness guards,
// single-use invitations, transactional rollback) mirror the PostgreSQL
// implementation.
package inmemdb

import (
	"context"
	"sync"
	"time"

	"github.com/darasa-app/darasa/core"
	"github.com/darasa-app/darasa/core/assessment"
	"github.com/darasa-app/darasa/core/invite"
	"github.com/darasa-app/darasa/core/student"
	"github.com/darasa-app/darasa/core/user"
)

type DB struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	users           map[string]*user.User
	adminProfiles   map[string]*user.AdminProfile
	teacherProfiles map[string]*user.TeacherProfile
	batches         map[string]*student.Batch
	studentProfiles map[string]*student.StudentProfile
	attendance      map[string]*student.Attendance
	assessments     map[string]*assessment.Assessment
	submissions     map[string]*assessment.Submission
	invitations     map[string]*invite.Invitation
}

func Open() *DB {
	return &DB{
		users:           make(map[string]*user.User),
		adminProfiles:   make(map[string]*user.AdminProfile),
		teacherProfiles: make(map[string]*user.TeacherProfile),
		batches:         make(map[string]*student.Batch),
		studentProfiles: make(map[string]*student.StudentProfile),
		attendance:      make(map[string]*student.Attendance),
		assessments:     make(map[string]*assessment.Assessment),
		submissions:     make(map[string]*assessment.Submission),
		invitations:     make(map[string]*invite.Invitation),
	}
}

type snapshot struct {
	users           map[string]*user.User
	adminProfiles   map[string]*user.AdminProfile
	teacherProfiles map[string]*user.TeacherProfile
	batches         map[string]*student.Batch
	studentProfiles map[string]*student.StudentProfile
	attendance      map[string]*student.Attendance
	assessments     map[string]*assessment.Assessment
	submissions     map[string]*assessment.Submission
	invitations     map[string]*invite.Invitation
}

// InTx serializes transactional units on a single lock and rolls the
// whole store back when fn errors. The executor handed to fn is nil;
// the map-backed repositories ignore it.
func (db *DB) InTx(_ context.Context, fn func(exec core.DBExecutor) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	snap := db.snapshot()
	if err := fn(nil); err != nil {
		db.restore(snap)
		return err
	}
	return nil
}

func (db *DB) snapshot() snapshot {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return snapshot{
		users:           copyTable(db.users),
		adminProfiles:   copyTable(db.adminProfiles),
		teacherProfiles: copyTable(db.teacherProfiles),
		batches:         copyTable(db.batches),
		studentProfiles: copyTable(db.studentProfiles),
		attendance:      copyTable(db.attendance),
		assessments:     copyTable(db.assessments),
		submissions:     copyTable(db.submissions),
		invitations:     copyTable(db.invitations),
	}
}

func (db *DB) restore(snap snapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users = snap.users
	db.adminProfiles = snap.adminProfiles
	db.teacherProfiles = snap.teacherProfiles
	db.batches = snap.batches
	db.studentProfiles = snap.studentProfiles
	db.attendance = snap.attendance
	db.assessments = snap.assessments
	db.submissions = snap.submissions
	db.invitations = snap.invitations
}

func copyTable[K comparable, V any](table map[K]*V) map[K]*V {
	out := make(map[K]*V, len(table))
	for k, v := range table {
		cp := *v
		out[k] = &cp
	}
	return out
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
