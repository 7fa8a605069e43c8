package files

import (
	"context"
	"strings"
	"time"

	"sharehub/internal/display"
)

var demoFiles = []struct {
	name    string
	content string
}{
	{"welcome-guide.pdf", "Welcome to ShareHub! This is a demo PDF file."},
	{"sample-image.png", "Sample image content (base64 would go here)"},
	{"demo-presentation.pptx", "Demo presentation content"},
	{"data-sheet.xlsx", "Sample spreadsheet data"},
}

// SeedDemo stores the demo files, each backdated by one more day than the
// previous one.
func SeedDemo(ctx context.Context, reg *Registry) ([]FileRecord, error) {
	now := reg.now()
	seeded := make([]FileRecord, 0, len(demoFiles))
	for i, f := range demoFiles {
		meta := Meta{
			Name:       f.name,
			MIMEType:   display.DetectMIME(f.name, ""),
			UploadedAt: now.Add(-time.Duration(i) * 24 * time.Hour),
		}
		rec, err := reg.Put(ctx, meta, strings.NewReader(f.content))
		if err != nil {
			return seeded, err
		}
		seeded = append(seeded, rec)
	}
	reg.logger.Info().Int("count", len(seeded)).Msg("demo files seeded")
	return seeded, nil
}
