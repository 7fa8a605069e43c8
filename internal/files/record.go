package files

import (
	"time"

	"sharehub/internal/display"
)

// Meta is what a caller knows about a file before it is stored.
type Meta struct {
	Name       string
	MIMEType   string
	UploadedAt time.Time
}

// FileRecord is the registry's metadata for one stored file. It never carries
// the payload itself.
type FileRecord struct {
	ID         string
	Name       string
	MIMEType   string
	Size       int64
	SHA256     string
	UploadedAt time.Time
	Downloads  int64
	Storage    string
}

// View is the public JSON shape of a file.
type View struct {
	ID            string    `json:"id"`
	OriginalName  string    `json:"originalName"`
	Size          int64     `json:"size"`
	MIMEType      string    `json:"mimeType"`
	UploadDate    time.Time `json:"uploadDate"`
	Downloads     int64     `json:"downloads"`
	Icon          string    `json:"icon"`
	FormattedSize string    `json:"formattedSize"`
	SHA256        string    `json:"sha256,omitempty"`
	Storage       string    `json:"storage"`
}

// View renders the record for API responses and chat snapshots.
func (r FileRecord) View() View {
	return View{
		ID:            r.ID,
		OriginalName:  r.Name,
		Size:          r.Size,
		MIMEType:      r.MIMEType,
		UploadDate:    r.UploadedAt,
		Downloads:     r.Downloads,
		Icon:          display.Icon(r.Name, r.MIMEType),
		FormattedSize: display.FormatSize(r.Size),
		SHA256:        r.SHA256,
		Storage:       r.Storage,
	}
}
