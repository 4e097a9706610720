package export

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// CertificateField is one labelled line on a certificate
type CertificateField struct {
	Label string
	Value string
}

// CertificateOptions configures the ownership certificate page
type CertificateOptions struct {
	Title       string
	Subtitle    string
	FontFamily  string
	AccentColor [3]int
	IssuedAt    time.Time
}

func DefaultCertificateOptions() CertificateOptions {
	return CertificateOptions{
		Title:       "Carbon Credit Certificate",
		Subtitle:    "Certificate of ownership",
		FontFamily:  "Helvetica",
		AccentColor: [3]int{46, 125, 50},
		IssuedAt:    time.Now().UTC(),
	}
}

// CertificateWriter renders a single landscape certificate page.
type CertificateWriter struct {
	pdf     *gofpdf.Fpdf
	options CertificateOptions
}

func NewCertificateWriter(options CertificateOptions) *CertificateWriter {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle(options.Title, true)
	pdf.SetCreator("carbon marketplace", true)
	return &CertificateWriter{pdf: pdf, options: options}
}

// Render lays out the title, headline and fields, then writes the PDF to w.
func (c *CertificateWriter) Render(w io.Writer, headline string, fields []CertificateField) error {
	p := c.pdf
	o := c.options
	p.AddPage()

	width, height := p.GetPageSize()
	p.SetDrawColor(o.AccentColor[0], o.AccentColor[1], o.AccentColor[2])
	p.SetLineWidth(1.5)
	p.Rect(10, 10, width-20, height-20, "D")

	p.SetY(30)
	p.SetFont(o.FontFamily, "B", 26)
	p.SetTextColor(o.AccentColor[0], o.AccentColor[1], o.AccentColor[2])
	p.CellFormat(0, 12, o.Title, "", 1, "C", false, 0, "")

	p.SetFont(o.FontFamily, "", 13)
	p.SetTextColor(100, 100, 100)
	p.CellFormat(0, 8, o.Subtitle, "", 1, "C", false, 0, "")

	p.Ln(8)
	p.SetFont(o.FontFamily, "B", 16)
	p.SetTextColor(0, 0, 0)
	p.CellFormat(0, 10, headline, "", 1, "C", false, 0, "")
	p.Ln(6)

	for _, f := range fields {
		p.SetX(60)
		p.SetFont(o.FontFamily, "B", 11)
		p.CellFormat(55, 8, f.Label, "", 0, "L", false, 0, "")
		p.SetFont(o.FontFamily, "", 11)
		p.CellFormat(0, 8, f.Value, "", 1, "L", false, 0, "")
	}

	p.SetY(height - 30)
	p.SetFont(o.FontFamily, "I", 9)
	p.SetTextColor(128, 128, 128)
	p.CellFormat(0, 6, fmt.Sprintf("Issued %s", o.IssuedAt.Format("2006-01-02 15:04 MST")), "", 1, "C", false, 0, "")

	if err := p.Error(); err != nil {
		return fmt.Errorf("failed to render certificate: %w", err)
	}
	return p.Output(w)
}
