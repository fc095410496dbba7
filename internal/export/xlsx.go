package export

import (
	"fmt"
	"io"
	"time"

	"steam-auth-backend/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	AuthDataSheet = "auth_data"
	ContentType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var authDataHeader = []interface{}{"ID", "Steam ID", "Username", "User IP", "Domain ID", "Created At", "Updated At"}

// AuthDataWriter streams auth records into a single-sheet workbook.
type AuthDataWriter struct {
	file   *excelize.File
	stream *excelize.StreamWriter
	row    int
}

func NewAuthDataWriter() (*AuthDataWriter, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", AuthDataSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(AuthDataSheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open stream writer: %w", err)
	}
	w := &AuthDataWriter{file: f, stream: sw}
	if err := w.setRow(authDataHeader); err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

// Add appends one record as the next row.
func (w *AuthDataWriter) Add(r models.AuthData) error {
	return w.setRow([]interface{}{
		r.ID,
		r.SteamID,
		r.Username,
		r.UserIP,
		r.DomainID,
		r.CreatedAt.UTC().Format(time.RFC3339),
		r.UpdatedAt.UTC().Format(time.RFC3339),
	})
}

// Rows returns how many records were added, excluding the header.
func (w *AuthDataWriter) Rows() int {
	return w.row - 1
}

// WriteTo flushes the sheet and writes the workbook to out.
func (w *AuthDataWriter) WriteTo(out io.Writer) (int64, error) {
	if err := w.stream.Flush(); err != nil {
		return 0, fmt.Errorf("flush sheet: %w", err)
	}
	return w.file.WriteTo(out)
}

func (w *AuthDataWriter) Close() error {
	return w.file.Close()
}

func (w *AuthDataWriter) setRow(values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, w.row+1)
	if err != nil {
		return err
	}
	if err := w.stream.SetRow(cell, values); err != nil {
		return fmt.Errorf("write row %d: %w", w.row+1, err)
	}
	w.row++
	return nil
}
