package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/darasa-app/darasa/core"
	"github.com/darasa-app/darasa/core/student"
)

type studentRepository struct {
	db *sqlx.DB
}

func NewStudentRepository(db *sqlx.DB) *studentRepository {
	return &studentRepository{db: db}
}

// batches

type batchRow struct {
	ID          string      `db:"id"`
	Name        string      `db:"name"`
	Description null.String `db:"description"`
	StartDate   time.Time   `db:"start_date"`
	EndDate     null.Time   `db:"end_date"`
}

func (r batchRow) toBatch() student.Batch {
	return student.Batch{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description.String,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate.Time,
	}
}

func (repo *studentRepository) CreateBatch(ctx context.Context, b student.Batch) (student.Batch, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	query := `INSERT INTO batch (id, name, description, start_date, end_date) VALUES ($1, $2, $3, $4, $5)`
	_, err := repo.db.ExecContext(ctx, query,
		b.ID, b.Name, null.NewString(b.Description, b.Description != ""), b.StartDate, null.NewTime(b.EndDate, !b.EndDate.IsZero()),
	)
	if err != nil {
		if uniqueViolation(err, "batch_name_key") {
			return student.Batch{}, student.ErrBatchNameExists
		}
		return student.Batch{}, errors.Wrap(err, "creating batch")
	}
	return b, nil
}

func (repo *studentRepository) QueryAllBatches(ctx context.Context) ([]student.Batch, error) {
	var rows []batchRow
	query := `SELECT id, name, description, start_date, end_date FROM batch ORDER BY start_date DESC, name`
	if err := repo.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying batches")
	}
	batches := make([]student.Batch, 0, len(rows))
	for _, row := range rows {
		batches = append(batches, row.toBatch())
	}
	return batches, nil
}

func (repo *studentRepository) GetBatchByID(ctx context.Context, id string) (student.Batch, error) {
	var row batchRow
	query := `SELECT id, name, description, start_date, end_date FROM batch WHERE id = $1`
	if err := repo.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return student.Batch{}, student.ErrBatchNotFound
		}
		return student.Batch{}, errors.Wrap(err, "getting batch")
	}
	return row.toBatch(), nil
}

func (repo *studentRepository) UpdateBatch(ctx context.Context, b student.Batch) (student.Batch, error) {
	query := `UPDATE batch SET name = $2, description = $3, start_date = $4, end_date = $5 WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, query,
		b.ID, b.Name, null.NewString(b.Description, b.Description != ""), b.StartDate, null.NewTime(b.EndDate, !b.EndDate.IsZero()),
	)
	if err != nil {
		if uniqueViolation(err, "batch_name_key") {
			return student.Batch{}, student.ErrBatchNameExists
		}
		return student.Batch{}, errors.Wrap(err, "updating batch")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return student.Batch{}, student.ErrBatchNotFound
	}
	return b, nil
}

func (repo *studentRepository) DeleteBatch(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM batch WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting batch")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return student.ErrBatchNotFound
	}
	return nil
}

// student profiles

type studentProfileRow struct {
	ID             string      `db:"id"`
	UserID         string      `db:"user_id"`
	FirstName      string      `db:"first_name"`
	LastName       string      `db:"last_name"`
	RollNo         null.String `db:"roll_no"`
	FatherName     null.String `db:"father_name"`
	MotherName     null.String `db:"mother_name"`
	DateOfBirth    null.Time   `db:"date_of_birth"`
	Gender         null.String `db:"gender"`
	Phone          null.String `db:"phone"`
	EmergencyPhone null.String `db:"emergency_phone"`
	Address        null.String `db:"address"`
	City           null.String `db:"city"`
	State          null.String `db:"state"`
	Pincode        null.String `db:"pincode"`
	Course         null.String `db:"course"`
	BatchID        null.String `db:"batch_id"`
	JoiningDate    null.Time   `db:"joining_date"`
	Username       null.String `db:"username"`
	BatchName      null.String `db:"batch_name"`
}

func (r studentProfileRow) toProfile() student.StudentProfile {
	return student.StudentProfile{
		ID:             r.ID,
		UserID:         r.UserID,
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		RollNo:         r.RollNo.String,
		FatherName:     r.FatherName.String,
		MotherName:     r.MotherName.String,
		DateOfBirth:    r.DateOfBirth.Time,
		Gender:         r.Gender.String,
		Phone:          r.Phone.String,
		EmergencyPhone: r.EmergencyPhone.String,
		Address:        r.Address.String,
		City:           r.City.String,
		State:          r.State.String,
		Pincode:        r.Pincode.String,
		Course:         r.Course.String,
		BatchID:        r.BatchID.String,
		JoiningDate:    r.JoiningDate.Time,
		Username:       r.Username.String,
		BatchName:      r.BatchName.String,
	}
}

const studentProfileSelect = `
	SELECT sp.id, sp.user_id, sp.first_name, sp.last_name, sp.roll_no, sp.father_name, sp.mother_name,
	       sp.date_of_birth, sp.gender, sp.phone, sp.emergency_phone, sp.address, sp.city, sp.state,
	       sp.pincode, sp.course, sp.batch_id, sp.joining_date, u.username AS username, b.name AS batch_name
	FROM student_profile sp
	JOIN "user" u ON u.id = sp.user_id
	LEFT JOIN batch b ON b.id = sp.batch_id`

func (repo *studentRepository) CreateStudentProfile(ctx context.Context, sp student.StudentProfile, exec ...core.DBExecutor) (student.StudentProfile, error) {
	if sp.ID == "" {
		sp.ID = uuid.NewString()
	}
	query := `
		INSERT INTO student_profile (id, user_id, first_name, last_name, roll_no, father_name, mother_name,
		                             date_of_birth, gender, phone, emergency_phone, address, city, state,
		                             pincode, course, batch_id, joining_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	_, err := ext(repo.db, exec).ExecContext(ctx, query,
		sp.ID, sp.UserID, sp.FirstName, sp.LastName,
		null.NewString(sp.RollNo, sp.RollNo != ""), null.NewString(sp.FatherName, sp.FatherName != ""),
		null.NewString(sp.MotherName, sp.MotherName != ""), null.NewTime(sp.DateOfBirth, !sp.DateOfBirth.IsZero()),
		null.NewString(sp.Gender, sp.Gender != ""), null.NewString(sp.Phone, sp.Phone != ""),
		null.NewString(sp.EmergencyPhone, sp.EmergencyPhone != ""), null.NewString(sp.Address, sp.Address != ""),
		null.NewString(sp.City, sp.City != ""), null.NewString(sp.State, sp.State != ""),
		null.NewString(sp.Pincode, sp.Pincode != ""), null.NewString(sp.Course, sp.Course != ""),
		null.NewString(sp.BatchID, sp.BatchID != ""), null.NewTime(sp.JoiningDate, !sp.JoiningDate.IsZero()),
	)
	if err != nil {
		if uniqueViolation(err, "student_profile_roll_no_uix") {
			return student.StudentProfile{}, student.ErrRollNoExists
		}
		return student.StudentProfile{}, errors.Wrap(err, "creating student profile")
	}
	return sp, nil
}

var studentOrderColumns = map[string]string{
	"first_name":   "sp.first_name",
	"last_name":    "sp.last_name",
	"roll_no":      "sp.roll_no",
	"course":       "sp.course",
	"joining_date": "sp.joining_date",
}

func (repo *studentRepository) QueryStudentProfiles(ctx context.Context, qf student.QueryFilter) ([]student.StudentProfile, error) {
	query := studentProfileSelect + ` WHERE 1=1`
	var args []interface{}
	if qf.BatchID != "" {
		args = append(args, qf.BatchID)
		query += ` AND sp.batch_id = ?`
	}
	if qf.Course != "" {
		args = append(args, qf.Course)
		query += ` AND sp.course ILIKE ?`
	}
	if qf.Search != "" {
		args = append(args, "%"+qf.Search+"%")
		query += ` AND (sp.first_name ILIKE ? OR sp.last_name ILIKE ? OR sp.roll_no ILIKE ?)`
		args = append(args, args[len(args)-1], args[len(args)-1])
	}
	query += orderBy(qf.Ordering, studentOrderColumns, ` ORDER BY sp.roll_no, sp.first_name`)
	query = repo.db.Rebind(query)

	var rows []studentProfileRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying student profiles")
	}
	profs := make([]student.StudentProfile, 0, len(rows))
	for _, row := range rows {
		profs = append(profs, row.toProfile())
	}
	return profs, nil
}

func (repo *studentRepository) getStudentProfile(ctx context.Context, where string, arg interface{}) (student.StudentProfile, error) {
	var row studentProfileRow
	if err := repo.db.GetContext(ctx, &row, studentProfileSelect+` WHERE `+where, arg); err != nil {
		if err == sql.ErrNoRows {
			return student.StudentProfile{}, student.ErrNotFound
		}
		return student.StudentProfile{}, errors.Wrap(err, "getting student profile")
	}
	return row.toProfile(), nil
}

func (repo *studentRepository) GetStudentProfileByID(ctx context.Context, id string) (student.StudentProfile, error) {
	return repo.getStudentProfile(ctx, `sp.id = $1`, id)
}

func (repo *studentRepository) GetStudentProfileByUserID(ctx context.Context, userID string) (student.StudentProfile, error) {
	return repo.getStudentProfile(ctx, `sp.user_id = $1`, userID)
}

func (repo *studentRepository) UpdateStudentProfile(ctx context.Context, sp student.StudentProfile) (student.StudentProfile, error) {
	query := `
		UPDATE student_profile
		SET first_name = $2, last_name = $3, roll_no = $4, father_name = $5, mother_name = $6,
		    date_of_birth = $7, gender = $8, phone = $9, emergency_phone = $10, address = $11,
		    city = $12, state = $13, pincode = $14, course = $15, batch_id = $16, joining_date = $17
		WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, query,
		sp.ID, sp.FirstName, sp.LastName,
		null.NewString(sp.RollNo, sp.RollNo != ""), null.NewString(sp.FatherName, sp.FatherName != ""),
		null.NewString(sp.MotherName, sp.MotherName != ""), null.NewTime(sp.DateOfBirth, !sp.DateOfBirth.IsZero()),
		null.NewString(sp.Gender, sp.Gender != ""), null.NewString(sp.Phone, sp.Phone != ""),
		null.NewString(sp.EmergencyPhone, sp.EmergencyPhone != ""), null.NewString(sp.Address, sp.Address != ""),
		null.NewString(sp.City, sp.City != ""), null.NewString(sp.State, sp.State != ""),
		null.NewString(sp.Pincode, sp.Pincode != ""), null.NewString(sp.Course, sp.Course != ""),
		null.NewString(sp.BatchID, sp.BatchID != ""), null.NewTime(sp.JoiningDate, !sp.JoiningDate.IsZero()),
	)
	if err != nil {
		if uniqueViolation(err, "student_profile_roll_no_uix") {
			return student.StudentProfile{}, student.ErrRollNoExists
		}
		return student.StudentProfile{}, errors.Wrap(err, "updating student profile")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return student.StudentProfile{}, student.ErrNotFound
	}
	return sp, nil
}

// attendance

type attendanceRow struct {
	ID            string      `db:"id"`
	StudentID     string      `db:"student_id"`
	Date          time.Time   `db:"date"`
	Status        string      `db:"status"`
	StudentName   null.String `db:"student_name"`
	StudentRollNo null.String `db:"student_roll_no"`
}

func (r attendanceRow) toAttendance() student.Attendance {
	return student.Attendance{
		ID:            r.ID,
		StudentID:     r.StudentID,
		Date:          r.Date,
		Status:        r.Status,
		StudentName:   r.StudentName.String,
		StudentRollNo: r.StudentRollNo.String,
	}
}

func (repo *studentRepository) UpsertAttendance(ctx context.Context, att student.Attendance) (student.Attendance, bool, error) {
	if att.ID == "" {
		att.ID = uuid.NewString()
	}
	// xmax = 0 only holds for freshly inserted rows
	query := `
		INSERT INTO attendance (id, student_id, date, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (student_id, date) DO UPDATE SET status = EXCLUDED.status
		RETURNING id, (xmax = 0) AS inserted`
	var res struct {
		ID       string `db:"id"`
		Inserted bool   `db:"inserted"`
	}
	if err := repo.db.GetContext(ctx, &res, query, att.ID, att.StudentID, att.Date, att.Status); err != nil {
		return student.Attendance{}, false, errors.Wrap(err, "upserting attendance")
	}
	att.ID = res.ID
	return att, res.Inserted, nil
}

func (repo *studentRepository) QueryAttendance(ctx context.Context, af student.AttendanceFilter) ([]student.Attendance, error) {
	query := `
		SELECT a.id, a.student_id, a.date, a.status,
		       (sp.first_name || ' ' || sp.last_name) AS student_name, sp.roll_no AS student_roll_no
		FROM attendance a
		JOIN student_profile sp ON sp.id = a.student_id
		WHERE 1=1`
	var args []interface{}
	if af.StudentID != "" {
		args = append(args, af.StudentID)
		query += ` AND a.student_id = ?`
	}
	if af.BatchID != "" {
		args = append(args, af.BatchID)
		query += ` AND sp.batch_id = ?`
	}
	if af.Year != 0 {
		args = append(args, af.Year)
		query += ` AND EXTRACT(YEAR FROM a.date) = ?`
	}
	if af.Month != 0 {
		args = append(args, af.Month)
		query += ` AND EXTRACT(MONTH FROM a.date) = ?`
	}
	if af.Date != "" {
		args = append(args, student.ParseDate(af.Date))
		query += ` AND a.date = ?`
	}
	query += ` ORDER BY a.date, sp.roll_no`
	query = repo.db.Rebind(query)

	var rows []attendanceRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}
	records := make([]student.Attendance, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toAttendance())
	}
	return records, nil
}
