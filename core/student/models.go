package student

import (
	"time"

	"github.com/darasa-app/darasa/core"
)

// Attendance statuses
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
)

// Genders
const (
	GenderMale   = "male"
	GenderFemale = "female"
	GenderOther  = "other"
)

const dateFormat = "2006-01-02"

// Batch is a cohort grouping of students sharing a curriculum/assessment set.
type Batch struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"` // e.g., "Batch A", "2024-Python-B1"
	Description string    `json:"description"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
}

type NewBatch struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	StartDate   string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

func (nb *NewBatch) Validate() error {
	nb.Name = core.CleanString(nb.Name)
	nb.Description = core.CleanString(nb.Description)
	return core.Validate.Struct(nb)
}

type UpdateBatch struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	StartDate   string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate     string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

func (ub *UpdateBatch) Validate() error {
	ub.Name = core.CleanString(ub.Name)
	ub.Description = core.CleanString(ub.Description)
	return core.Validate.Struct(ub)
}

// StudentProfile is the role-specific profile owned by a student User.
type StudentProfile struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	RollNo         string    `json:"roll_no"`
	FatherName     string    `json:"father_name"`
	MotherName     string    `json:"mother_name"`
	DateOfBirth    time.Time `json:"date_of_birth"`
	Gender         string    `json:"gender"`
	Phone          string    `json:"phone"`
	EmergencyPhone string    `json:"emergency_phone"`
	Address        string    `json:"address"`
	City           string    `json:"city"`
	State          string    `json:"state"`
	Pincode        string    `json:"pincode"`
	Course         string    `json:"course"`
	BatchID        string    `json:"batch_id"`
	JoiningDate    time.Time `json:"joining_date"`

	// read-only, filled on queries
	Username  string `json:"username,omitempty"`
	BatchName string `json:"batch_name,omitempty"`
}

func (sp *StudentProfile) FullName() string {
	return core.CleanString(sp.FirstName + " " + sp.LastName)
}

// ProfileFields are the optional student attributes accepted at
// provisioning time (invitation acceptance or direct creation).
type ProfileFields struct {
	RollNo         string `json:"roll_no"`
	FatherName     string `json:"father_name"`
	MotherName     string `json:"mother_name"`
	DateOfBirth    string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Gender         string `json:"gender" validate:"omitempty,oneof=male female other"`
	Phone          string `json:"phone"`
	EmergencyPhone string `json:"emergency_phone"`
	Address        string `json:"address"`
	City           string `json:"city"`
	State          string `json:"state"`
	Pincode        string `json:"pincode"`
	Course         string `json:"course"`
	JoiningDate    string `json:"joining_date" validate:"omitempty,datetime=2006-01-02"`
}

// Apply copies the set fields onto a StudentProfile.
func (pf ProfileFields) Apply(sp *StudentProfile) {
	sp.RollNo = core.CleanString(pf.RollNo)
	sp.FatherName = core.CleanString(pf.FatherName)
	sp.MotherName = core.CleanString(pf.MotherName)
	sp.DateOfBirth = ParseDate(pf.DateOfBirth)
	sp.Gender = core.CleanString(pf.Gender, true /* lower */)
	sp.Phone = core.CleanString(pf.Phone)
	sp.EmergencyPhone = core.CleanString(pf.EmergencyPhone)
	sp.Address = core.CleanString(pf.Address)
	sp.City = core.CleanString(pf.City)
	sp.State = core.CleanString(pf.State)
	sp.Pincode = core.CleanString(pf.Pincode)
	sp.Course = core.CleanString(pf.Course)
	sp.JoiningDate = ParseDate(pf.JoiningDate)
}

// NewStudent creates a student account + profile directly (staff only).
type NewStudent struct {
	Username  string `json:"username" validate:"required,alphanum_"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	BatchID   string `json:"batch_id"`

	ProfileFields
}

func (ns *NewStudent) Validate() error {
	ns.Username = core.CleanString(ns.Username, true /* lower */)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.FirstName = core.CleanString(ns.FirstName)
	ns.LastName = core.CleanString(ns.LastName)
	return core.Validate.Struct(ns)
}

type UpdateStudent struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	BatchID   string `json:"batch_id"`

	ProfileFields
}

func (us *UpdateStudent) Validate() error {
	us.FirstName = core.CleanString(us.FirstName)
	us.LastName = core.CleanString(us.LastName)
	return core.Validate.Struct(us)
}

// QueryFilter applies AND operation on available fields.
// Search does a case-insensitive match on one of FirstName, LastName or RollNo.
type QueryFilter struct {
	BatchID string `query:"batch_id"`
	Course  string `query:"course"`
	Search  string `query:"search"`

	// set by the API layer from ?ordering=; unknown fields are ignored
	Ordering []core.DBOrdering `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Course = core.CleanString(qf.Course)
	qf.Search = core.CleanString(qf.Search)
}

// Attendance records a student's presence for one day.
type Attendance struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	Date      time.Time `json:"date"`
	Status    string    `json:"status"`

	// read-only, filled on queries
	StudentName   string `json:"student_name,omitempty"`
	StudentRollNo string `json:"student_roll_no,omitempty"`
}

type NewAttendance struct {
	StudentID string `json:"student_id" validate:"required"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Status    string `json:"status" validate:"required,oneof=present absent"`
}

func (na *NewAttendance) Validate() error {
	na.Status = core.CleanString(na.Status, true /* lower */)
	return core.Validate.Struct(na)
}

// BulkAttendance marks a whole batch for one day: listed students are
// present, every other student in the batch is absent.
type BulkAttendance struct {
	BatchID           string   `json:"batch_id" validate:"required"`
	Date              string   `json:"date" validate:"required,datetime=2006-01-02"`
	PresentStudentIDs []string `json:"present_student_ids"`
}

func (ba *BulkAttendance) Validate() error {
	return core.Validate.Struct(ba)
}

// BulkAttendanceResult reports the outcome for one student of a bulk mark.
type BulkAttendanceResult struct {
	StudentID string `json:"student_id"`
	RollNo    string `json:"roll_no"`
	Status    string `json:"status"`
	Created   bool   `json:"created"`
}

type AttendanceFilter struct {
	StudentID string `query:"student_id"`
	BatchID   string `query:"batch_id"`
	Year      int    `query:"year"`
	Month     int    `query:"month"`
	Date      string `query:"date"`
}

// TrendPoint is one month of a student's attendance history.
type TrendPoint struct {
	Year                 int     `json:"year"`
	Month                int     `json:"month"`
	AttendancePercentage float64 `json:"attendance_percentage"`
}

// MonthlyReportEntry is one student's attendance summary for a month.
type MonthlyReportEntry struct {
	StudentID            string  `json:"student_id"`
	StudentName          string  `json:"student_name"`
	RollNo               string  `json:"roll_no"`
	Year                 int     `json:"year"`
	Month                int     `json:"month"`
	TotalDays            int     `json:"total_days"`
	PresentDays          int     `json:"present_days"`
	AbsentDays           int     `json:"absent_days"`
	AttendancePercentage float64 `json:"attendance_percentage"`
}

// ParseDate parses a `2006-01-02` date, returning the zero time on empty
// or malformed input. Inputs are expected to be pre-validated.
func ParseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
